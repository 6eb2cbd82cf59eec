// Package embed wraps an opaque "embed(texts) -> [][]float64" collaborator
// as a small provider interface.
package embed

import "context"

// Provider turns text into L2-normalizable embedding vectors. Outputs are
// assumed L2-normalized by the model but internal/eas re-normalizes
// defensively regardless.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f ProviderFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}
