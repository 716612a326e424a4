package ai

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

// WithEmbedRateLimit bounds provider calls to rps per second. A zero or
// negative rps returns next unchanged.
func WithEmbedRateLimit(next IEmbedder, rps float64, burst int) IEmbedder {
	if next == nil || rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedEmbedder{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, texts, taskType)
}

func (r *rateLimitedEmbedder) ModelName() string {
	return r.next.ModelName()
}

type rateLimitedGenerator struct {
	next    IGenerator
	limiter *rate.Limiter
}

func WithGenerateRateLimit(next IGenerator, rps float64, burst int) IGenerator {
	if next == nil || rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedGenerator{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, prompt)
}
