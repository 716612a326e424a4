// Package retrieval answers "which chunks of this tenant's documents best
// match the question" in two stages: vector recall, then reranking.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/ai"
	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
	"github.com/xxxsen/policyrag/internal/rerank"
	"github.com/xxxsen/policyrag/internal/vectorindex"
	"github.com/xxxsen/policyrag/internal/workpool"
)

const DefaultInitialTopK = 25

const (
	StageEmbed  = "embed"
	StageRecall = "recall"
	StageRerank = "rerank"
)

type Option func(*Pipeline)

// WithInitialTopK sets how many candidates recall fetches before reranking.
// A request asking for more than that fetches topK instead.
func WithInitialTopK(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.initialTopK = n
		}
	}
}

// WithMaxTopK rejects requests for more than n results. Zero means no limit.
func WithMaxTopK(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxTopK = n
		}
	}
}

// WithTimeout bounds one Retrieve call, all stages included.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

type Pipeline struct {
	embedder    ai.IEmbedder
	index       vectorindex.Index
	reranker    rerank.Reranker
	pool        *workpool.Pool
	initialTopK int
	maxTopK     int
	timeout     time.Duration
}

func New(embedder ai.IEmbedder, index vectorindex.Index, reranker rerank.Reranker, pool *workpool.Pool, opts ...Option) (*Pipeline, error) {
	if embedder == nil || index == nil || reranker == nil || pool == nil {
		return nil, appErr.Config("retrieval pipeline requires embedder, index, reranker and pool")
	}
	p := &Pipeline{
		embedder:    embedder,
		index:       index,
		reranker:    reranker,
		pool:        pool,
		initialTopK: DefaultInitialTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Retrieve returns at most topK chunks of tenantID, best first by rerank
// score. A tenant with no indexed documents gets an empty result.
func (p *Pipeline) Retrieve(ctx context.Context, tenantID, question string, topK int) ([]model.RetrievalCandidate, error) {
	if err := p.validate(tenantID, question, topK); err != nil {
		return nil, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("tenant_id", tenantID))
	start := time.Now()

	vectors, err := p.embedder.Embed(ctx, []string{question}, ai.TaskRetrievalQuery)
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}
	if err != nil {
		logger.Error("embed question failed", zap.Error(err))
		return nil, appErr.RetrievalStage(StageEmbed, tenantID, err)
	}

	k := max(p.initialTopK, topK)
	recalled, err := workpool.Submit(ctx, p.pool, func(ctx context.Context) ([]model.RetrievalCandidate, error) {
		return p.index.Query(ctx, tenantID, vectors[0], k)
	})
	if err != nil {
		logger.Error("recall failed", zap.Int("k", k), zap.Error(err))
		return nil, appErr.RetrievalStage(StageRecall, tenantID, err)
	}
	candidates := p.ownedBy(ctx, tenantID, recalled)
	if len(candidates) == 0 {
		logger.Info("no candidates recalled", zap.Duration("cost", time.Since(start)))
		return []model.RetrievalCandidate{}, nil
	}

	ranked, err := workpool.Submit(ctx, p.pool, func(ctx context.Context) ([]model.RetrievalCandidate, error) {
		return p.reranker.Rerank(ctx, question, candidates)
	})
	if err != nil {
		logger.Error("rerank failed", zap.Int("candidates", len(candidates)), zap.Error(err))
		return nil, appErr.RetrievalStage(StageRerank, tenantID, err)
	}
	rerank.SortByScore(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	logger.Info("retrieval finished",
		zap.Int("recalled", len(candidates)),
		zap.Int("returned", len(ranked)),
		zap.String("reranker", p.reranker.ModelName()),
		zap.Duration("cost", time.Since(start)),
	)
	return ranked, nil
}

func (p *Pipeline) validate(tenantID, question string, topK int) error {
	if strings.TrimSpace(tenantID) == "" {
		return appErr.Invalid("tenant_id is required")
	}
	if strings.TrimSpace(question) == "" {
		return appErr.Invalid("question is required")
	}
	if topK <= 0 {
		return appErr.Invalid("top_k must be positive, got %d", topK)
	}
	if p.maxTopK > 0 && topK > p.maxTopK {
		return appErr.Invalid("top_k must not exceed %d, got %d", p.maxTopK, topK)
	}
	return nil
}

// ownedBy drops candidates whose metadata names another tenant. The index
// already filters, this guards against a misbehaving backend.
func (p *Pipeline) ownedBy(ctx context.Context, tenantID string, in []model.RetrievalCandidate) []model.RetrievalCandidate {
	out := in[:0:0]
	for _, c := range in {
		if c.Metadata.TenantID != tenantID {
			logutil.GetLogger(ctx).Warn("dropping candidate of another tenant",
				zap.String("tenant_id", tenantID),
				zap.String("candidate_tenant_id", c.Metadata.TenantID),
				zap.String("record_id", c.ID),
			)
			continue
		}
		out = append(out, c)
	}
	return out
}
