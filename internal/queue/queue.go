// Package queue is the durable ingestion task queue backed by the
// ingest_jobs table. Delivery is at-least-once.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const DefaultMaxAttempts = 4

type Task struct {
	TenantID    string
	DocID       string
	UserID      string
	Locator     string
	ContentType string
	Filename    string
}

// JobStore is implemented by repo.IngestJobRepo.
type JobStore interface {
	Create(ctx context.Context, job *model.IngestJob) error
	Get(ctx context.Context, jobID string) (*model.IngestJob, error)
	ClaimDue(ctx context.Context, now int64, limit int) ([]model.IngestJob, error)
	MarkSucceeded(ctx context.Context, jobID string, chunkCount int, now int64) error
	MarkRetry(ctx context.Context, jobID string, lastErr string, nextRunAt int64, now int64) error
	MarkFailed(ctx context.Context, jobID string, lastErr string, now int64) error
	ResetStale(ctx context.Context, before int64, now int64) (int64, error)
}

type Dispatcher struct {
	store       JobStore
	maxAttempts int
	now         func() time.Time
}

func NewDispatcher(store JobStore, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{store: store, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue records a pending job that is due immediately.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) (*model.IngestJob, error) {
	if strings.TrimSpace(task.TenantID) == "" || strings.TrimSpace(task.DocID) == "" || strings.TrimSpace(task.Locator) == "" {
		return nil, appErr.Invalid("tenant_id, doc_id and locator are required")
	}
	now := d.now().Unix()
	job := &model.IngestJob{
		ID:          uuid.NewString(),
		TenantID:    task.TenantID,
		DocID:       task.DocID,
		UserID:      task.UserID,
		Locator:     task.Locator,
		ContentType: task.ContentType,
		Filename:    task.Filename,
		Status:      model.IngestJobStatusPending,
		MaxAttempts: d.maxAttempts,
		NextRunAt:   now,
		Ctime:       now,
		Mtime:       now,
	}
	if err := d.store.Create(ctx, job); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("ingest job enqueued",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("doc_id", job.DocID),
	)
	return job, nil
}

func (d *Dispatcher) Status(ctx context.Context, jobID string) (*model.IngestJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, appErr.Invalid("task_id is required")
	}
	return d.store.Get(ctx, jobID)
}
