package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrityScan compares running balances against the ledger.
	TaskStockIntegrityScan = "stock:integrity_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CleanupPayload carries the retention window for TaskIdempotencyCleanup.
// Zero means the worker's configured retention.
type CleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds,omitempty"`
}

// NewStockIntegrityScanTask constructs the integrity scan task.
func NewStockIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrityScan, nil, asynq.MaxRetry(1), asynq.Timeout(10*time.Minute))
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3)), nil
}

// Schedule returns the cron registrations the worker installs by default.
func Schedule(retention time.Duration) ([]CronRegistration, error) {
	cleanup, err := NewIdempotencyCleanupTask(retention)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "0 2 * * *", Task: NewStockIntegrityScanTask(), Options: []asynq.Option{asynq.Queue(QueueDefault)}},
		{Spec: "@hourly", Task: cleanup, Options: []asynq.Option{asynq.Queue(QueueDefault)}},
	}, nil
}
