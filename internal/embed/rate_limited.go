package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token bucket so the shared embedding
// collaborator can be called concurrently from multiple requests without
// one hot agent starving others.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter allowing ratePerSec sustained
// calls and a burst of burst.
func NewRateLimited(inner Provider, ratePerSec float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Embed blocks until the limiter admits the call, then delegates to inner.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}
