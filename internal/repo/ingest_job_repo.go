package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/policyrag/internal/model"
	"github.com/xxxsen/policyrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const ingestJobTable = "ingest_jobs"

var ingestJobColumns = []string{
	"id", "tenant_id", "doc_id", "user_id", "locator", "content_type", "filename",
	"status", "attempts", "max_attempts", "last_error", "chunk_count", "next_run_at", "ctime", "mtime",
}

const ingestJobReturning = `id, tenant_id, doc_id, user_id, locator, content_type, filename,
	status, attempts, max_attempts, last_error, chunk_count, next_run_at, ctime, mtime`

type IngestJobRepo struct {
	db *sql.DB
}

func NewIngestJobRepo(db *sql.DB) *IngestJobRepo {
	return &IngestJobRepo{db: db}
}

func (r *IngestJobRepo) Create(ctx context.Context, job *model.IngestJob) error {
	data := map[string]interface{}{
		"id":           job.ID,
		"tenant_id":    job.TenantID,
		"doc_id":       job.DocID,
		"user_id":      job.UserID,
		"locator":      job.Locator,
		"content_type": job.ContentType,
		"filename":     job.Filename,
		"status":       job.Status,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"last_error":   job.LastError,
		"chunk_count":  job.ChunkCount,
		"next_run_at":  job.NextRunAt,
		"ctime":        job.Ctime,
		"mtime":        job.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert(ingestJobTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *IngestJobRepo) Get(ctx context.Context, jobID string) (*model.IngestJob, error) {
	where := map[string]interface{}{"id": jobID}
	sqlStr, args, err := builder.BuildSelect(ingestJobTable, where, ingestJobColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanIngestJob(rows)
}

// ClaimDue moves up to limit due pending jobs to processing and returns them.
// Concurrent workers never claim the same row.
func (r *IngestJobRepo) ClaimDue(ctx context.Context, now int64, limit int) ([]model.IngestJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		UPDATE ingest_jobs
		SET status = $1, attempts = attempts + 1, mtime = $2
		WHERE id IN (
			SELECT id FROM ingest_jobs
			WHERE status = $3 AND next_run_at <= $2
			ORDER BY next_run_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + ingestJobReturning
	rows, err := r.db.QueryContext(ctx, query, model.IngestJobStatusProcessing, now, model.IngestJobStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := make([]model.IngestJob, 0, limit)
	for rows.Next() {
		job, err := scanIngestJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *IngestJobRepo) MarkSucceeded(ctx context.Context, jobID string, chunkCount int, now int64) error {
	return r.update(ctx, jobID, map[string]interface{}{
		"status":      model.IngestJobStatusSucceeded,
		"chunk_count": chunkCount,
		"last_error":  "",
		"mtime":       now,
	})
}

// MarkRetry puts the job back to pending, runnable again at nextRunAt.
func (r *IngestJobRepo) MarkRetry(ctx context.Context, jobID string, lastErr string, nextRunAt int64, now int64) error {
	return r.update(ctx, jobID, map[string]interface{}{
		"status":      model.IngestJobStatusPending,
		"last_error":  lastErr,
		"next_run_at": nextRunAt,
		"mtime":       now,
	})
}

func (r *IngestJobRepo) MarkFailed(ctx context.Context, jobID string, lastErr string, now int64) error {
	return r.update(ctx, jobID, map[string]interface{}{
		"status":     model.IngestJobStatusFailed,
		"last_error": lastErr,
		"mtime":      now,
	})
}

// ResetStale returns processing jobs not touched since before to pending.
func (r *IngestJobRepo) ResetStale(ctx context.Context, before int64, now int64) (int64, error) {
	where := map[string]interface{}{
		"status":  model.IngestJobStatusProcessing,
		"mtime <": before,
	}
	update := map[string]interface{}{
		"status":      model.IngestJobStatusPending,
		"next_run_at": now,
		"mtime":       now,
	}
	sqlStr, args, err := builder.BuildUpdate(ingestJobTable, where, update)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *IngestJobRepo) update(ctx context.Context, jobID string, update map[string]interface{}) error {
	where := map[string]interface{}{"id": jobID}
	sqlStr, args, err := builder.BuildUpdate(ingestJobTable, where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIngestJob(row rowScanner) (*model.IngestJob, error) {
	var job model.IngestJob
	if err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.DocID,
		&job.UserID,
		&job.Locator,
		&job.ContentType,
		&job.Filename,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastError,
		&job.ChunkCount,
		&job.NextRunAt,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		return nil, err
	}
	return &job, nil
}
