package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/crestline-fin/crestline/internal/consol"
	jobmetrics "github.com/crestline-fin/crestline/internal/jobs"
)

// RunExecutor drives a prepared consolidation run to a terminal state.
type RunExecutor interface {
	Execute(ctx context.Context, runID uuid.UUID) (consol.Run, error)
}

// ConsolidationRunJob handles TaskConsolidationRun deliveries. Domain
// failures finalize the run and count as a handled task; only
// infrastructure errors are returned so Asynq retries them.
type ConsolidationRunJob struct {
	Service RunExecutor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidationRunJob constructs the job handler.
func NewConsolidationRunJob(service RunExecutor, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidationRunJob {
	return &ConsolidationRunJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one consolidation run task.
func (j *ConsolidationRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consolidation run: executor not configured")
	}
	var payload ConsolidationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID == uuid.Nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskConsolidationRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	run, err := j.Service.Execute(ctx, payload.RunID)
	switch {
	case errors.Is(err, consol.ErrRunNotFound):
		// The row is gone; redelivery can never succeed.
		j.log().Error("run missing", slog.String("run_id", payload.RunID.String()))
		resultErr = fmt.Errorf("run %s: %w", payload.RunID, asynq.SkipRetry)
		return resultErr
	case err != nil:
		resultErr = err
		j.log().Error("execute run", slog.String("run_id", payload.RunID.String()), slog.Any("error", err))
		return resultErr
	}

	if run.Status == consol.RunStatusFailed {
		j.log().Warn("run finalized as failed",
			slog.String("run_id", run.ID.String()),
			slog.String("reason", run.FailureReason))
		return resultErr
	}
	j.log().Info("run completed",
		slog.String("run_id", run.ID.String()),
		slog.Bool("balanced", run.Balanced),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ConsolidationRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidationRun))
	}
	return slog.Default().With(slog.String("job", TaskConsolidationRun))
}

func (j *ConsolidationRunJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidationRunJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
