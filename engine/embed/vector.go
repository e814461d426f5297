package embed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/LoomworksAI/apiloom/engine/domain"
	"github.com/LoomworksAI/apiloom/pkg/fn"
)

// Vector associates a descriptor ID with its embedding values plus the
// metadata denormalized at generation time, so the graph can be rendered
// without re-joining against the descriptor source.
type Vector struct {
	ID           string    `json:"id"`
	Values       []float32 `json:"values"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Capabilities []string  `json:"capabilities"`
	Description  string    `json:"description,omitempty"`
}

// Generator batches descriptors through a Provider and caches the produced
// vectors by descriptor ID. Vectors are created once per descriptor per
// generation request and superseded, never mutated, by regeneration.
type Generator struct {
	provider Provider
	workers  int
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]Vector
}

// NewGenerator creates a Generator. workers bounds embedding concurrency;
// values <= 0 embed the whole batch at once. A nil logger uses the default.
func NewGenerator(provider Provider, workers int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		workers:  workers,
		logger:   logger,
		cache:    make(map[string]Vector),
	}
}

// Generate embeds every descriptor in the batch. Provider failures are
// isolated per descriptor: the failing descriptor is logged and dropped,
// the rest of the batch proceeds. The returned slice preserves batch order.
func (g *Generator) Generate(ctx context.Context, batch []domain.ServiceDescriptor) []Vector {
	results := fn.ParMapResult(batch, g.workers, func(d domain.ServiceDescriptor) fn.Result[Vector] {
		values, err := g.provider.Embed(ctx, d)
		if err != nil {
			return fn.Err[Vector](&ProviderError{DescriptorID: d.ID, Wrapped: err})
		}
		return fn.Ok(Vector{
			ID:           d.ID,
			Values:       values,
			Name:         d.Name,
			Type:         d.Type,
			Capabilities: d.Capabilities,
			Description:  d.Description,
		})
	})

	vectors := make([]Vector, 0, len(batch))
	for _, r := range results {
		v, err := r.Unwrap()
		if err != nil {
			g.logger.Warn("embedding failed, descriptor dropped", "error", err)
			continue
		}
		vectors = append(vectors, v)
	}

	g.mu.Lock()
	for _, v := range vectors {
		g.cache[v.ID] = v
	}
	g.mu.Unlock()
	return vectors
}

// Cached returns the most recently generated vector for a descriptor ID.
func (g *Generator) Cached(id string) (Vector, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.cache[id]
	return v, ok
}

// CachedAll returns all cached vectors keyed by descriptor ID.
func (g *Generator) CachedAll() map[string]Vector {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Vector, len(g.cache))
	for k, v := range g.cache {
		out[k] = v
	}
	return out
}
