package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// fallback calls fn for every entry in order and returns the first success.
// Each failure is logged with the entry's name. When nothing could be tried
// the result wraps ErrUnavailable.
func fallback[T any](ctx context.Context, kind string, names []string, fn func(i int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i, name := range names {
		res, err := fn(i)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn(kind+" failed, trying next",
			zap.Int("index", i),
			zap.String("name", name),
			zap.Int("remaining", len(names)-i-1),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		return zero, fmt.Errorf("%w: no %s configured", ErrUnavailable, kind)
	}
	return zero, lastErr
}

type groupGenerator struct {
	names []string
	gens  []IGenerator
}

// NewGroupGenerator skips nil entries and returns nil when none is left.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	g := &groupGenerator{}
	for _, item := range items {
		if item.Generator == nil {
			continue
		}
		g.names = append(g.names, item.Name)
		g.gens = append(g.gens, item.Generator)
	}
	if len(g.gens) == 0 {
		return nil
	}
	return g
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return fallback(ctx, "generator", g.names, func(i int) (string, error) {
		return g.gens[i].Generate(ctx, prompt)
	})
}

type groupEmbedder struct {
	names     []string
	embedders []IEmbedder
}

// NewGroupEmbedder skips nil entries and returns nil when none is left.
// A batch is never split across embedders, so every vector of one call
// comes from the same model.
func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	g := &groupEmbedder{}
	for _, item := range items {
		if item.Embedder == nil {
			continue
		}
		g.names = append(g.names, item.Name)
		g.embedders = append(g.embedders, item.Embedder)
	}
	if len(g.embedders) == 0 {
		return nil
	}
	return g
}

func (g *groupEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return fallback(ctx, "embedder", g.names, func(i int) ([][]float32, error) {
		return g.embedders[i].Embed(ctx, texts, taskType)
	})
}

// ModelName joins the non empty entry names with "|". It keys the
// embedding cache, so changing the fallback list invalidates cached vectors.
func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.names))
	for _, name := range g.names {
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}
