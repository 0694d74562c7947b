// Package jobs hosts the Asynq background worker and its task definitions.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueRefresh flips unpaid invoices past their due date to OVERDUE.
	TaskOverdueRefresh = "ar:overdue_refresh"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "ar:idempotency_cleanup"
)

// OverdueRefreshPayload parameterises the overdue status refresh.
type OverdueRefreshPayload struct {
	AsOf time.Time `json:"asOf"`
}

// NewOverdueRefreshTask constructs an Asynq task.
func NewOverdueRefreshTask(payload OverdueRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueRefresh, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload parameterises key pruning.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
