package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/filestore"
	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
	"github.com/xxxsen/policyrag/internal/queue"
)

var (
	ErrStoreFailed   = errors.New("store document failed")
	ErrEnqueueFailed = errors.New("enqueue ingestion failed")
)

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (*model.IngestJob, error)
	Status(ctx context.Context, jobID string) (*model.IngestJob, error)
}

type TypeChecker interface {
	Supported(contentType string) bool
}

type UploadService struct {
	store    filestore.Store
	types    TypeChecker
	queue    TaskQueue
	detect   func(filename, declared string) string
	maxBytes int64
}

type UploadInput struct {
	TenantID    string
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	DocID       string `json:"doc_id"`
	TaskID      string `json:"task_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	Bucket      string `json:"bucket"`
	Status      string `json:"status"`
}

type TaskStatus struct {
	TaskID     string `json:"task_id"`
	TenantID   string `json:"tenant_id"`
	DocID      string `json:"doc_id"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	ChunkCount int    `json:"chunk_count"`
	LastError  string `json:"last_error,omitempty"`
	Mtime      int64  `json:"mtime"`
}

func NewUploadService(store filestore.Store, types TypeChecker, q TaskQueue, detect func(filename, declared string) string, maxBytes int64) *UploadService {
	return &UploadService{store: store, types: types, queue: q, detect: detect, maxBytes: maxBytes}
}

func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores the document under <tenant>/<doc_id>_<filename> and queues
// its ingestion. The returned status is always pending.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if err := validateTenant(in.TenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, appErr.Invalid("user_id is required")
	}
	filename := cleanFilename(in.Filename)
	if filename == "" {
		return nil, appErr.Invalid("filename is required")
	}
	if in.Size <= 0 {
		return nil, appErr.Invalid("file is empty")
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, appErr.Invalid("file exceeds %d bytes", s.maxBytes)
	}
	contentType := s.detect(filename, in.ContentType)
	if !s.types.Supported(contentType) {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedType, contentType)
	}

	docID := uuid.NewString()
	key := in.TenantID + "/" + docID + "_" + filename
	logger := logutil.GetLogger(ctx).With(
		zap.String("tenant_id", in.TenantID),
		zap.String("doc_id", docID),
		zap.String("key", key),
	)
	if err := s.store.Save(ctx, key, in.Body, in.Size, contentType); err != nil {
		logger.Error("store upload failed", zap.Error(err))
		if appErr.IsInput(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	job, err := s.queue.Enqueue(ctx, queue.Task{
		TenantID:    in.TenantID,
		DocID:       docID,
		UserID:      in.UserID,
		Locator:     key,
		ContentType: contentType,
		Filename:    filename,
	})
	if err != nil {
		logger.Error("enqueue ingestion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
	}
	logger.Info("document uploaded", zap.String("task_id", job.ID), zap.Int64("size", in.Size))
	return &UploadResult{
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		DocID:       docID,
		TaskID:      job.ID,
		Filename:    filename,
		ContentType: contentType,
		URL:         s.store.URL(key),
		Bucket:      s.store.Bucket(),
		Status:      job.Status,
	}, nil
}

// TaskStatus hides tasks of other tenants behind not found.
func (s *UploadService) TaskStatus(ctx context.Context, tenantID, taskID string) (*TaskStatus, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	job, err := s.queue.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, appErr.ErrNotFound
	}
	return &TaskStatus{
		TaskID:     job.ID,
		TenantID:   job.TenantID,
		DocID:      job.DocID,
		Status:     job.Status,
		Attempts:   job.Attempts,
		ChunkCount: job.ChunkCount,
		LastError:  job.LastError,
		Mtime:      job.Mtime,
	}, nil
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return appErr.Invalid("tenant_id is required")
	}
	if strings.ContainsAny(tenantID, `/\`) || strings.Contains(tenantID, "..") {
		return appErr.Invalid("tenant_id %q contains path characters", tenantID)
	}
	return nil
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Join(strings.Fields(name), "_")
}
