package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/model"
)

// CacheStore is the persistent side of the cache, implemented by
// repo.EmbeddingCacheRepo.
type CacheStore interface {
	GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, items []model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store CacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store CacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	modelName := normalizeModel(d.next.ModelName())
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		hashes[i] = contentHash(text)
	}
	cached, err := d.store.GetMany(ctx, modelName, taskType, hashes)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		cached = nil
	}
	for i, text := range texts {
		if values, ok := cached[hashes[i]]; ok {
			out[i] = values
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if hit := len(texts) - len(missIdx); hit > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hit", hit), zap.Int("total", len(texts)))
	}
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := d.next.Embed(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(missIdx) {
		return nil, errCountMismatch(len(res), len(missIdx))
	}
	now := time.Now().Unix()
	items := make([]model.EmbeddingCache, 0, len(missIdx))
	for j, i := range missIdx {
		out[i] = res[j]
		items = append(items, model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[i],
			Vector:      res[j],
			CreatedAt:   now,
		})
	}
	if err := d.store.SaveMany(ctx, items); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embeddings", zap.Int("count", len(items)), zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func normalizeModel(modelName string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "unknown"
	}
	return modelName
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func buildCacheKey(modelName, taskType, text string) string {
	return "embed:" + normalizeModel(modelName) + ":" + taskType + ":" + contentHash(text)
}
