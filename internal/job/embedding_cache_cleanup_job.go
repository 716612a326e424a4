package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultCacheRetention = 30 * 24 * time.Hour

type cacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob expires persisted embeddings older than the
// retention window.
type EmbeddingCacheCleanupJob struct {
	cleaner   cacheCleaner
	retention time.Duration
	now       func() time.Time
}

func NewEmbeddingCacheCleanupJob(cleaner cacheCleaner, retentionDays int) *EmbeddingCacheCleanupJob {
	retention := defaultCacheRetention
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	return &EmbeddingCacheCleanupJob{cleaner: cleaner, retention: retention, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cleaner == nil {
		return nil
	}
	cutoff := j.now().Add(-j.retention)
	n, err := j.cleaner.DeleteBefore(ctx, cutoff.Unix())
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Info("expired cached embeddings",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
