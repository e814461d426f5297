package embed

import (
	"context"

	"github.com/LoomworksAI/apiloom/engine/domain"
	"github.com/LoomworksAI/apiloom/pkg/resilience"
)

// TextEmbedder is the contract for model-backed embedding clients that
// work on raw text (e.g. pkg/ollama). TextProvider adapts one to the
// descriptor-level Provider contract.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// TextProvider feeds a descriptor's text signature to a TextEmbedder.
type TextProvider struct {
	embedder TextEmbedder
}

func NewTextProvider(embedder TextEmbedder) *TextProvider {
	return &TextProvider{embedder: embedder}
}

// Embed implements Provider.
func (p *TextProvider) Embed(ctx context.Context, d domain.ServiceDescriptor) ([]float32, error) {
	return p.embedder.EmbedText(ctx, signature(d))
}

// Dimensions implements Provider.
func (p *TextProvider) Dimensions() int { return p.embedder.Dimensions() }

// GuardedProvider runs Embed calls through a circuit breaker so a dead
// model backend fails fast instead of stalling the whole batch.
type GuardedProvider struct {
	inner   Provider
	breaker *resilience.Breaker
}

func NewGuardedProvider(inner Provider, breaker *resilience.Breaker) *GuardedProvider {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &GuardedProvider{inner: inner, breaker: breaker}
}

// Embed implements Provider.
func (p *GuardedProvider) Embed(ctx context.Context, d domain.ServiceDescriptor) ([]float32, error) {
	var out []float32
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var embedErr error
		out, embedErr = p.inner.Embed(ctx, d)
		return embedErr
	})
	return out, err
}

// Dimensions implements Provider.
func (p *GuardedProvider) Dimensions() int { return p.inner.Dimensions() }
