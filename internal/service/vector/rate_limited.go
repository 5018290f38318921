package vector

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedding paces calls to an embedding backend. A batch waits for one
// token per text.
type RateLimitedEmbedding struct {
	inner   EmbeddingModel
	limiter *rate.Limiter
}

// NewRateLimitedEmbedding allows rps requests per second with a burst of one second's
// worth. rps <= 0 disables limiting.
func NewRateLimitedEmbedding(inner EmbeddingModel, rps float64) *RateLimitedEmbedding {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &RateLimitedEmbedding{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimitedEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return r.inner.GenerateEmbedding(ctx, text)
}

func (r *RateLimitedEmbedding) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	// WaitN fails outright when n exceeds the burst, so wait per text
	for range texts {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}
	return r.inner.GenerateEmbeddings(ctx, texts)
}

func (r *RateLimitedEmbedding) GetDimension() int {
	return r.inner.GetDimension()
}

func (r *RateLimitedEmbedding) GetModelName() string {
	return r.inner.GetModelName()
}
