package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crestline-fin/crestline/internal/jobs"
)

const (
	// TaskIdempotencySweep prunes expired idempotency claims.
	TaskIdempotencySweep = "idempotency:sweep"

	// defaultRetentionHours keeps claims for a week, well past any
	// client's retry window.
	defaultRetentionHours = 168
)

// IdempotencySweepPayload bounds the sweep. Zero or negative retention
// applies the default.
type IdempotencySweepPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// KeyCleaner removes idempotency claims older than the retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencySweepJob handles TaskIdempotencySweep deliveries. Claims only
// block duplicates inside the retention window, so the sweep keeps the
// claims table from growing without bound.
type IdempotencySweepJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIdempotencySweepJob constructs the job handler.
func NewIdempotencySweepJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencySweepJob {
	return &IdempotencySweepJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewIdempotencySweepTask creates an Asynq task for pruning expired claims.
func NewIdempotencySweepTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencySweepPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencySweep, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes one sweep.
func (j *IdempotencySweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency sweep: store not configured")
	}
	var payload IdempotencySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = defaultRetentionHours
	}

	tracker := j.Metrics.Track(TaskIdempotencySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	if err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour); err != nil {
		resultErr = err
		j.log().Error("sweep idempotency keys",
			slog.Int("retention_hours", payload.RetentionHours),
			slog.Any("error", err))
		return resultErr
	}
	j.log().Info("swept idempotency keys",
		slog.Int("retention_hours", payload.RetentionHours),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *IdempotencySweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencySweep))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencySweep))
}

func (j *IdempotencySweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *IdempotencySweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
