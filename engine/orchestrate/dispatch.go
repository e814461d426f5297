package orchestrate

import (
	"context"
	"fmt"
)

// Handler executes one step action against an API. Handlers are external
// collaborators (the real network calls live behind them); any error they
// return surfaces as the step's failure.
type Handler func(ctx context.Context, apiID string, payload map[string]any) (map[string]any, error)

// Dispatcher maps action tags to handlers. The action set is closed, so
// the table is enum-keyed rather than open string matching.
type Dispatcher struct {
	handlers map[Action]Handler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Action]Handler)}
}

// Register binds a handler to an action. Invalid actions are ignored so a
// table can only ever contain the closed set.
func (d *Dispatcher) Register(action Action, h Handler) {
	if !action.Valid() || h == nil {
		return
	}
	d.handlers[action] = h
}

// Dispatch runs the step's handler. An unrecognized or unbound action tag
// fails with ErrUnknownAction.
func (d *Dispatcher) Dispatch(ctx context.Context, step Step) (map[string]any, error) {
	h, ok := d.handlers[step.Action]
	if !ok {
		return nil, fmt.Errorf("step %s: %w: %q", step.ID, ErrUnknownAction, step.Action)
	}
	return h(ctx, step.APIID, step.Payload)
}
