package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LoomworksAI/apiloom/engine/domain"
)

// Engine owns flow lifecycle: creation, step sequencing, execution, and
// deletion. Execution is strictly sequential within a flow; separate flows
// may be driven concurrently by the host and interleave at the operation
// level.
type Engine struct {
	registry   *Registry
	dispatcher *Dispatcher
	events     *EventPublisher
	logger     *slog.Logger

	mu          sync.RWMutex
	descriptors []domain.ServiceDescriptor
}

// NewEngine creates an Engine around an injected registry and dispatch
// table. events may be nil when no event bus is wired; a nil logger uses
// the default.
func NewEngine(registry *Registry, dispatcher *Dispatcher, events *EventPublisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
	}
}

// UseDescriptors replaces the descriptor snapshot consulted by the route
// and suggestion heuristics.
func (e *Engine) UseDescriptors(descriptors []domain.ServiceDescriptor) {
	e.mu.Lock()
	e.descriptors = descriptors
	e.mu.Unlock()
}

func (e *Engine) snapshot() []domain.ServiceDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.descriptors
}

// CreateFlow allocates a new flow: fresh id, empty step list, pending
// status. apiIDs may be empty; no further validation is applied.
func (e *Engine) CreateFlow(ctx context.Context, name string, apiIDs []string) Flow {
	f := &Flow{
		ID:        uuid.NewString(),
		Name:      name,
		Steps:     []Step{},
		APIIDs:    apiIDs,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	e.registry.put(f)
	e.logger.Info("flow created", "flow_id", f.ID, "name", name, "apis", len(apiIDs))
	e.events.FlowCreated(ctx, f.ID, name)
	return copyFlow(f)
}

// AddStep assigns the step a fresh id, appends it, and re-sorts the flow's
// live step list by Order ascending (stable, so equal orders keep insertion
// order). Safe while the flow is pending or running, though steps added
// behind a running execution's position won't run in that pass.
func (e *Engine) AddStep(flowID string, step Step) error {
	f, ok := e.registry.get(flowID)
	if !ok {
		return fmt.Errorf("add step: %w: %s", ErrFlowNotFound, flowID)
	}
	step.ID = uuid.NewString()
	e.registry.withLock(func() {
		f.Steps = append(f.Steps, step)
		sort.SliceStable(f.Steps, func(i, j int) bool {
			return f.Steps[i].Order < f.Steps[j].Order
		})
	})
	return nil
}

// ExecuteFlow transitions pending→running, then dispatches each step in
// order, awaiting each before the next. The first failing step sets the
// flow to failed and propagates the error; remaining steps never run. No
// snapshot of the step list is taken: execution iterates whatever the live
// ordered list contains when each index is reached. All steps succeeding
// transitions the flow to completed.
func (e *Engine) ExecuteFlow(ctx context.Context, flowID string) error {
	f, ok := e.registry.get(flowID)
	if !ok {
		return fmt.Errorf("execute: %w: %s", ErrFlowNotFound, flowID)
	}

	var terminal Status
	e.registry.withLock(func() {
		if f.Status.Terminal() {
			terminal = f.Status
			return
		}
		f.Status = StatusRunning
	})
	if terminal != "" {
		return fmt.Errorf("execute: flow %s is already %s", flowID, terminal)
	}

	e.events.FlowStarted(ctx, f.ID)
	e.logger.Info("flow started", "flow_id", f.ID, "name", f.Name)

	for i := 0; ; i++ {
		var step Step
		var done bool
		e.registry.withLock(func() {
			if i >= len(f.Steps) {
				done = true
				return
			}
			step = f.Steps[i]
		})
		if done {
			break
		}

		if _, err := e.dispatcher.Dispatch(ctx, step); err != nil {
			e.registry.withLock(func() { f.Status = StatusFailed })
			e.events.FlowFailed(ctx, f.ID, err)
			e.logger.Error("flow failed", "flow_id", f.ID, "step_id", step.ID, "action", step.Action, "error", err)
			return fmt.Errorf("flow %s step %s (%s): %w", f.ID, step.ID, step.Action, err)
		}
		e.events.StepCompleted(ctx, f.ID, step.ID, step.Action)
	}

	e.registry.withLock(func() { f.Status = StatusCompleted })
	e.events.FlowCompleted(ctx, f.ID)
	e.logger.Info("flow completed", "flow_id", f.ID)
	return nil
}

// DeleteFlow removes a flow unconditionally. Deleting an absent id is not
// an error.
func (e *Engine) DeleteFlow(flowID string) {
	e.registry.delete(flowID)
}

// Flow returns a copy of the flow, or ErrFlowNotFound.
func (e *Engine) Flow(flowID string) (Flow, error) {
	f, ok := e.registry.get(flowID)
	if !ok {
		return Flow{}, fmt.Errorf("get: %w: %s", ErrFlowNotFound, flowID)
	}
	var out Flow
	e.registry.withLock(func() { out = copyFlow(f) })
	return out, nil
}

// Flows returns copies of all registered flows in creation order.
func (e *Engine) Flows() []Flow {
	ids := e.registry.ids()
	out := make([]Flow, 0, len(ids))
	for _, id := range ids {
		if f, err := e.Flow(id); err == nil {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// copyFlow deep-copies the step list so callers can't reach the live flow.
func copyFlow(f *Flow) Flow {
	out := *f
	out.Steps = make([]Step, len(f.Steps))
	copy(out.Steps, f.Steps)
	return out
}
