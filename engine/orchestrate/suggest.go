package orchestrate

import (
	"context"
	"strings"

	"github.com/LoomworksAI/apiloom/engine/domain"
)

// SuggestOrchestration builds a flow from a free-text requirement using two
// fixed keyword rules, evaluated independently:
//
//   - "text" or "content" adds a query step (order 1) against the first
//     known ai-category descriptor, if any.
//   - "save" or "store" adds a forward step (order 2) against the first
//     descriptor with the repository-management capability or, failing
//     that, version-control category.
//
// Matching is case-insensitive. A requirement matching neither rule yields
// a registered flow with zero steps. This is a template picker, not a
// planner.
func (e *Engine) SuggestOrchestration(ctx context.Context, requirement string) Flow {
	lowered := strings.ToLower(requirement)
	descriptors := e.snapshot()

	flow := e.CreateFlow(ctx, "suggested: "+requirement, nil)

	if strings.Contains(lowered, "text") || strings.Contains(lowered, "content") {
		if d, ok := firstOfType(descriptors, domain.CategoryAI); ok {
			e.AddStep(flow.ID, Step{
				Action:  ActionQuery,
				APIID:   d.ID,
				Payload: map[string]any{"requirement": requirement},
				Order:   1,
			})
		}
	}

	if strings.Contains(lowered, "save") || strings.Contains(lowered, "store") {
		if d, ok := firstStorageTarget(descriptors); ok {
			e.AddStep(flow.ID, Step{
				Action:  ActionForward,
				APIID:   d.ID,
				Payload: map[string]any{"requirement": requirement},
				Order:   2,
			})
		}
	}

	out, err := e.Flow(flow.ID)
	if err != nil {
		return flow
	}
	return out
}

func firstOfType(descriptors []domain.ServiceDescriptor, category string) (domain.ServiceDescriptor, bool) {
	for _, d := range descriptors {
		if d.Type == category {
			return d, true
		}
	}
	return domain.ServiceDescriptor{}, false
}

func firstStorageTarget(descriptors []domain.ServiceDescriptor) (domain.ServiceDescriptor, bool) {
	for _, d := range descriptors {
		if d.HasCapability(domain.CapabilityRepoManagement) || d.Type == domain.CategoryVersionControl {
			return d, true
		}
	}
	return domain.ServiceDescriptor{}, false
}
