package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-invoicing/internal/jobs"
	"github.com/odyssey-erp/odyssey-invoicing/internal/sales/invoices"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DuplicateFinder reports invoice numbers shared by several invoices.
type DuplicateFinder interface {
	FindDuplicateNumbers(ctx context.Context, branchID string, year int) ([]invoices.DuplicateNumber, error)
}

// DuplicateScanJob flags invoice numbers issued more than once.
type DuplicateScanJob struct {
	Finder  DuplicateFinder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDuplicateScanJob initialises the duplicate scan handler.
func NewDuplicateScanJob(finder DuplicateFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *DuplicateScanJob {
	return &DuplicateScanJob{Finder: finder, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *DuplicateScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Finder == nil {
		return errors.New("duplicate scan: handler not configured")
	}
	var payload DuplicateScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	payload.BranchID = strings.TrimSpace(payload.BranchID)

	start := time.Now()
	tracker := j.metrics().Track(TaskInvoiceDuplicateScan)
	logger := j.logger().With(slog.String("branch_id", payload.BranchID), slog.Int("year", payload.Year))

	dups, err := j.Finder.FindDuplicateNumbers(ctx, payload.BranchID, payload.Year)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, d := range dups {
		logger.Warn("duplicate invoice number",
			slog.String("invoice_number", d.Number),
			slog.Any("invoice_ids", d.IDs),
		)
	}
	j.publish(payload, dups)
	logger.Info("completed duplicate scan",
		slog.Int("duplicates", len(dups)),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

// publish sets the duplicates gauge per branch. A scan of every branch and
// year replaces all series; narrower scans only touch what they covered.
func (j *DuplicateScanJob) publish(payload DuplicateScanPayload, dups []invoices.DuplicateNumber) {
	if payload.BranchID != "" {
		j.metrics().SetDuplicateNumbers(payload.BranchID, len(dups))
		return
	}
	counts := make(map[string]int)
	for _, d := range dups {
		counts[d.Branch]++
	}
	if payload.Year == 0 {
		j.metrics().ReplaceDuplicateNumbers(counts)
		return
	}
	for branch, n := range counts {
		j.metrics().SetDuplicateNumbers(branch, n)
	}
}

func (j *DuplicateScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceDuplicateScan))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceDuplicateScan))
}

func (j *DuplicateScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
