package queue

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/policyrag/internal/ingest"
	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const (
	DefaultConcurrency = 4
	DefaultBackoffBase = 5 * time.Second
	DefaultJobTimeout  = 10 * time.Minute
	DefaultStaleAfter  = 15 * time.Minute
	maxErrorLength     = 1024
)

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

type WorkerConfig struct {
	Concurrency int
	BackoffBase time.Duration
	JobTimeout  time.Duration
	StaleAfter  time.Duration
}

type Worker struct {
	store    JobStore
	ingester Ingester
	cfg      WorkerConfig
	now      func() time.Time
}

func NewWorker(store JobStore, ingester Ingester, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Worker{store: store, ingester: ingester, cfg: cfg, now: time.Now}
}

// Backoff is the delay before retrying after the given failed attempt:
// base, 2·base, 4·base and so on.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}
	return base << (attempt - 1)
}

// RunOnce claims up to Concurrency due jobs and runs them in parallel. It
// returns the number of jobs claimed. Job failures are recorded on the job
// and do not fail the run.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.ClaimDue(ctx, w.now().Unix(), w.cfg.Concurrency)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			return w.process(ctx, &job)
		})
	}
	return len(jobs), g.Wait()
}

// ReapStale returns jobs stuck in processing, typically after a worker
// crash, to pending.
func (w *Worker) ReapStale(ctx context.Context) (int64, error) {
	now := w.now()
	n, err := w.store.ResetStale(ctx, now.Add(-w.cfg.StaleAfter).Unix(), now.Unix())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Warn("stale ingest jobs reset", zap.Int64("count", n))
	}
	return n, nil
}

// process returns an error only when the job outcome could not be stored.
func (w *Worker) process(ctx context.Context, job *model.IngestJob) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("doc_id", job.DocID),
		zap.Int("attempt", job.Attempts),
	)
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if job.Attempts > maxAttempts {
		logger.Error("ingest job exhausted attempts before running")
		return w.store.MarkFailed(ctx, job.ID, truncate(job.LastError), w.now().Unix())
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	res, err := w.ingester.Ingest(runCtx, ingest.Request{
		TenantID:    job.TenantID,
		DocID:       job.DocID,
		UserID:      job.UserID,
		Locator:     job.Locator,
		ContentType: job.ContentType,
		Metadata:    map[string]string{"job_id": job.ID, "filename": job.Filename},
	})
	cancel()

	now := w.now()
	if err == nil {
		logger.Info("ingest job succeeded", zap.Int("chunks", res.ChunkCount))
		return w.store.MarkSucceeded(ctx, job.ID, res.ChunkCount, now.Unix())
	}
	if !appErr.IsRetryable(err) || job.Attempts >= maxAttempts {
		logger.Error("ingest job failed", zap.Bool("retryable", appErr.IsRetryable(err)), zap.Error(err))
		return w.store.MarkFailed(ctx, job.ID, truncate(err.Error()), now.Unix())
	}
	delay := Backoff(w.cfg.BackoffBase, job.Attempts)
	logger.Warn("ingest job will be retried", zap.Duration("delay", delay), zap.Error(err))
	return w.store.MarkRetry(ctx, job.ID, truncate(err.Error()), now.Add(delay).Unix(), now.Unix())
}

// truncate bounds msg to maxErrorLength bytes of valid UTF-8, which the
// TEXT column requires. The cut never splits a rune.
func truncate(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
