package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceDuplicateScan looks for invoice numbers used more than once.
	TaskInvoiceDuplicateScan = "invoices:duplicate_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// DuplicateScanPayload scopes a duplicate scan. An empty BranchID scans every
// branch and Year 0 scans every year.
type DuplicateScanPayload struct {
	BranchID string `json:"branch_id"`
	Year     int    `json:"year"`
}

// NewDuplicateScanTask constructs a duplicate scan task.
func NewDuplicateScanTask(branchID string, year int) (*asynq.Task, error) {
	data, err := json.Marshal(DuplicateScanPayload{BranchID: branchID, Year: year})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceDuplicateScan, data), nil
}

// IdempotencyCleanupPayload configures the retention of idempotency keys.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
