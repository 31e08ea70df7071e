package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubCleaner struct {
	olderThan time.Duration
	err       error
	calls     int
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.calls++
	s.olderThan = olderThan
	return s.err
}

func TestIdempotencySweepTaskCarriesRetention(t *testing.T) {
	task, err := NewIdempotencySweepTask(72)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskIdempotencySweep {
		t.Fatalf("type = %q, want %q", task.Type(), TaskIdempotencySweep)
	}
	var payload IdempotencySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.RetentionHours != 72 {
		t.Fatalf("retention hours = %d, want 72", payload.RetentionHours)
	}
}

func TestSweepHandlePassesRetentionToStore(t *testing.T) {
	cleaner := &stubCleaner{}
	job := NewIdempotencySweepJob(cleaner, nil, nil)

	task, err := NewIdempotencySweepTask(72)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if cleaner.olderThan != 72*time.Hour {
		t.Fatalf("older than = %s, want 72h", cleaner.olderThan)
	}
}

func TestSweepHandleAppliesDefaultRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	job := NewIdempotencySweepJob(cleaner, nil, nil)

	task, err := NewIdempotencySweepTask(0)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if cleaner.olderThan != defaultRetentionHours*time.Hour {
		t.Fatalf("older than = %s, want the default week", cleaner.olderThan)
	}
}

func TestSweepHandleSkipsRetryOnMalformedPayload(t *testing.T) {
	cleaner := &stubCleaner{}
	job := NewIdempotencySweepJob(cleaner, nil, nil)

	task := asynq.NewTask(TaskIdempotencySweep, []byte("{not json"))
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if cleaner.calls != 0 {
		t.Fatalf("cleaner called %d times for a bad payload", cleaner.calls)
	}
}

func TestSweepHandleReturnsStoreErrorForRetry(t *testing.T) {
	storeErr := errors.New("dial tcp: connection refused")
	cleaner := &stubCleaner{err: storeErr}
	job := NewIdempotencySweepJob(cleaner, nil, nil)

	task, err := NewIdempotencySweepTask(24)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	err = job.Handle(context.Background(), task)
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want the store error", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("store errors must stay retryable")
	}
}
