package cli

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/crestline-fin/crestline/jobs"
)

// ConsolOpsCLI exposes helpers for managing consolidation run jobs.
type ConsolOpsCLI struct {
	jobs *JobsCLI
}

// NewConsolOpsCLI constructs the helper wired to the provided Redis endpoint.
func NewConsolOpsCLI(redisAddr string) (*ConsolOpsCLI, error) {
	base, err := NewJobsCLI(redisAddr)
	if err != nil {
		return nil, err
	}
	return &ConsolOpsCLI{jobs: base}, nil
}

// Close releases the underlying Asynq resources.
func (c *ConsolOpsCLI) Close() error {
	if c == nil || c.jobs == nil {
		return nil
	}
	return c.jobs.Close()
}

// RequeueRun enqueues execution of an already prepared run. This is the
// remedy for a run that was created over HTTP but never reached the queue.
func (c *ConsolOpsCLI) RequeueRun(ctx context.Context, runID uuid.UUID) (*asynq.TaskInfo, error) {
	if runID == uuid.Nil {
		return nil, errors.New("consol cli: run id required")
	}
	if c == nil || c.jobs == nil || c.jobs.client == nil {
		return nil, errors.New("consol cli: client not configured")
	}
	task, err := jobs.NewConsolidationRunTask(runID)
	if err != nil {
		return nil, err
	}
	return c.jobs.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats reports queue metrics for the default queue.
func (c *ConsolOpsCLI) QueueStats(ctx context.Context) (QueueStats, error) {
	if c == nil || c.jobs == nil {
		return QueueStats{}, errors.New("consol cli: inspector not configured")
	}
	return c.jobs.InspectQueue(ctx)
}
