package embed

import (
	"context"
	"math"
	"strings"

	"github.com/LoomworksAI/apiloom/engine/domain"
)

// DefaultDimensions is the vector size of the signature provider.
const DefaultDimensions = 128

// signatureScale keeps accumulator magnitudes small before normalization.
const signatureScale = 0.1

// SignatureProvider is the deterministic, provider-agnostic fallback. It
// folds the character codes of a descriptor's text signature into a
// fixed-length accumulator and L2-normalizes the result. Identical
// descriptors always produce identical unit-norm vectors; that determinism,
// not fidelity to any real semantic space, is what downstream code relies on.
type SignatureProvider struct {
	dims int
}

// NewSignatureProvider creates a provider with the given dimension.
// Non-positive dims fall back to DefaultDimensions.
func NewSignatureProvider(dims int) *SignatureProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &SignatureProvider{dims: dims}
}

// Dimensions implements Provider.
func (p *SignatureProvider) Dimensions() int { return p.dims }

// Embed implements Provider. It never fails.
func (p *SignatureProvider) Embed(_ context.Context, d domain.ServiceDescriptor) ([]float32, error) {
	sig := signature(d)
	acc := make([]float64, p.dims)
	for i := 0; i < len(sig); i++ {
		acc[i%p.dims] += float64(sig[i]) * signatureScale
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dims)
	if norm == 0 {
		return out, nil
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// signature concatenates the descriptor fields that carry semantics.
func signature(d domain.ServiceDescriptor) string {
	parts := make([]string, 0, 3+len(d.Capabilities))
	parts = append(parts, d.Name, d.Type, d.Description)
	parts = append(parts, d.Capabilities...)
	return strings.ToLower(strings.Join(parts, " "))
}
