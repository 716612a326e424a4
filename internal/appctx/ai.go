package appctx

import (
	"time"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/config"
	"github.com/xxxsen/policyrag/internal/embedcache"
	"github.com/xxxsen/policyrag/internal/repo"
)

const defaultLRUTTL = time.Hour

// buildEmbedder layers, outermost first: memory cache, db cache, rate
// limit, fallback group, provider batching.
func buildEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	primary, err := newEmbedder(cfg.AI.EmbedProvider, cfg.AI.EmbedModel, cfg.AI.EmbedData, cfg.AI.EmbedBatchSize)
	if err != nil {
		return nil, err
	}
	var embedder ai.IEmbedder = primary
	if len(cfg.AI.EmbedFallbacks) > 0 {
		entries := []ai.EmbedderEntry{{Name: cfg.AI.EmbedProvider + ":" + cfg.AI.EmbedModel, Embedder: primary}}
		for _, fb := range cfg.AI.EmbedFallbacks {
			e, err := newEmbedder(fb.Provider, fb.Model, fb.Data, cfg.AI.EmbedBatchSize)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ai.EmbedderEntry{Name: fb.Provider + ":" + fb.Model, Embedder: e})
		}
		embedder = ai.NewGroupEmbedder(entries)
	}
	embedder = ai.WithEmbedRateLimit(embedder, cfg.AI.EmbedRPS, cfg.AI.EmbedBurst)
	if cfg.EmbedCache.EnableDB && cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	ttl := time.Duration(cfg.EmbedCache.LRUTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultLRUTTL
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, ttl), nil
}

func newEmbedder(provider, model string, data map[string]interface{}, batchSize int) (ai.IEmbedder, error) {
	p, err := ai.NewEmbedProvider(provider, data)
	if err != nil {
		return nil, err
	}
	return ai.NewEmbedder(p, model, batchSize), nil
}

// buildGenerator returns nil when no generation provider is configured.
func buildGenerator(cfg *config.Config) (ai.IGenerator, error) {
	if cfg.AI.Provider == "" {
		return nil, nil
	}
	primary, err := newGenerator(cfg.AI.Provider, cfg.AI.Model, cfg.AI.Data)
	if err != nil {
		return nil, err
	}
	gen := primary
	if len(cfg.AI.Fallbacks) > 0 {
		entries := []ai.GeneratorEntry{{Name: cfg.AI.Provider + ":" + cfg.AI.Model, Generator: primary}}
		for _, fb := range cfg.AI.Fallbacks {
			g, err := newGenerator(fb.Provider, fb.Model, fb.Data)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ai.GeneratorEntry{Name: fb.Provider + ":" + fb.Model, Generator: g})
		}
		gen = ai.NewGroupGenerator(entries)
	}
	return ai.WithGenerateRateLimit(gen, cfg.AI.GenerateRPS, 1), nil
}

func newGenerator(provider, model string, data map[string]interface{}) (ai.IGenerator, error) {
	p, err := ai.NewProvider(provider, data)
	if err != nil {
		return nil, err
	}
	return ai.NewGenerator(p, model), nil
}
