// Package jobs wires asynchronous work: audit persistence off the
// request path and the scheduled retention sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetledger/fleetledger/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord persists one audit entry.
	TaskTypeAuditRecord = "audit:record"
	// TaskTypeAuditRetention removes audit entries past retention.
	TaskTypeAuditRetention = "audit:retention"
)

// NewAuditRecordTask constructs an asynq task for an audit entry.
func NewAuditRecordTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// NewAuditRetentionTask constructs the scheduled retention task.
func NewAuditRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskTypeAuditRetention, nil)
}

// AuditTaskHandler processes audit queue tasks.
type AuditTaskHandler struct {
	Repo    audit.Repository
	Service *audit.Service
	Logger  *slog.Logger
}

// HandleRecord persists one entry. A malformed payload is dropped rather
// than retried.
func (h AuditTaskHandler) HandleRecord(ctx context.Context, t *asynq.Task) error {
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}
	if err := h.Repo.Insert(ctx, entry); err != nil {
		if h.Logger != nil {
			h.Logger.Error("audit insert", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// HandleRetention applies the retention window.
func (h AuditTaskHandler) HandleRetention(ctx context.Context, t *asynq.Task) error {
	removed, err := h.Service.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	if h.Logger != nil && removed > 0 {
		h.Logger.Info("audit retention sweep", slog.Int64("removed", removed))
	}
	return nil
}
