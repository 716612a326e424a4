// Package rerank rescores recall candidates against the question.
package rerank

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/policyrag/internal/model"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

// Reranker fills Score on every candidate (higher is better) and returns
// them sorted by descending score. Implementations are built once per
// process and are safe for concurrent use.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []model.RetrievalCandidate) ([]model.RetrievalCandidate, error)
	ModelName() string
	Close() error
}

type Options struct {
	ModelName    string
	ModelDir     string
	OnnxFilePath string
	Endpoint     string
	Model        string
	APIKey       string
	TimeoutSec   int
}

type Factory func(ctx context.Context, opts Options) (Reranker, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(ctx context.Context, name string, opts Options) (Reranker, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, appErr.Config("unsupported reranker: %s", name)
	}
	return factory(ctx, opts)
}

// SortByScore orders candidates by descending score, keeping the incoming
// order for ties.
func SortByScore(candidates []model.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

func cloneCandidates(in []model.RetrievalCandidate) []model.RetrievalCandidate {
	out := make([]model.RetrievalCandidate, len(in))
	copy(out, in)
	return out
}
