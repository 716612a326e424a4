package rerank

import (
	"context"

	"github.com/xxxsen/common/logutil"

	"github.com/xxxsen/policyrag/internal/model"
)

// distanceReranker needs no model: the score is the cosine similarity the
// index already computed.
type distanceReranker struct{}

func NewDistance() Reranker {
	return distanceReranker{}
}

func (distanceReranker) Rerank(_ context.Context, _ string, candidates []model.RetrievalCandidate) ([]model.RetrievalCandidate, error) {
	out := cloneCandidates(candidates)
	for i := range out {
		out[i].Score = 1 - out[i].Distance
	}
	SortByScore(out)
	return out, nil
}

func (distanceReranker) ModelName() string {
	return "distance"
}

func (distanceReranker) Close() error {
	return nil
}

func init() {
	Register("distance", func(ctx context.Context, _ Options) (Reranker, error) {
		logutil.GetLogger(ctx).Warn("distance reranker selected, candidates keep their vector similarity order")
		return NewDistance(), nil
	})
}
