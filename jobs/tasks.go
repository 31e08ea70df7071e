package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidationRun executes a prepared consolidation run.
	TaskConsolidationRun = "consolidation:run"
)

// ConsolidationRunPayload names the run a worker should execute. The run
// row already exists in running state; the task only carries its id.
type ConsolidationRunPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// NewConsolidationRunTask constructs an Asynq task for the given run.
func NewConsolidationRunTask(runID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ConsolidationRunPayload{RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidationRun, body, asynq.Queue(QueueDefault)), nil
}
