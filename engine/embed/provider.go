// Package embed turns service descriptors into fixed-dimension vectors and
// scores their pairwise similarity. The embedding backend is pluggable via
// the Provider interface; the graph layer depends only on that contract.
package embed

import (
	"context"
	"fmt"

	"github.com/LoomworksAI/apiloom/engine/domain"
)

// Provider generates a fixed-dimension embedding vector for a descriptor.
// Real model-backed implementations and the deterministic SignatureProvider
// satisfy the same contract, so the graph builder never branches on which
// one is wired.
type Provider interface {
	// Embed returns a vector of exactly Dimensions() values.
	Embed(ctx context.Context, d domain.ServiceDescriptor) ([]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int
}

// ProviderError reports a per-descriptor embedding failure. Generation is
// partial-failure tolerant: the descriptor is dropped from the vector set
// and the batch continues.
type ProviderError struct {
	DescriptorID string
	Wrapped      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embed %s: %s", e.DescriptorID, e.Wrapped)
}

func (e *ProviderError) Unwrap() error { return e.Wrapped }
