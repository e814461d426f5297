// Package orchestrate sequences typed steps against discovered APIs and
// tracks flow lifecycle state. Flows live in an engine-owned in-memory
// registry; all mutation happens through the engine's own operations.
package orchestrate

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a flow. pending is the only initial
// state; completed and failed are terminal and never transition out.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Action is a step's dispatch tag, drawn from a fixed, closed set.
type Action string

const (
	ActionAuthenticate Action = "authenticate"
	ActionQuery        Action = "query"
	ActionTransform    Action = "transform"
	ActionForward      Action = "forward"
)

// Valid reports whether the action is in the closed set. Steps built from
// static code can be checked at construction; truly dynamic inputs fall
// back to the runtime UnknownAction failure at dispatch.
func (a Action) Valid() bool {
	switch a {
	case ActionAuthenticate, ActionQuery, ActionTransform, ActionForward:
		return true
	}
	return false
}

// Step is one unit of work within a flow. Payload is opaque to the engine
// core beyond dispatch. Order drives deterministic sequencing: ascending,
// with ties broken by insertion order.
type Step struct {
	ID      string         `json:"id"`
	Action  Action         `json:"action"`
	APIID   string         `json:"api_id"`
	Payload map[string]any `json:"payload,omitempty"`
	Order   int            `json:"order"`
}

// Flow is an ordered, stateful sequence of steps targeting APIs.
type Flow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Steps     []Step    `json:"steps"`
	APIIDs    []string  `json:"api_ids"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for flow operations.
var (
	// ErrFlowNotFound reports an operation on an unregistered flow id.
	// Recoverable; the caller decides what to do.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrUnknownAction reports dispatch on an unrecognized action tag. It
	// fails the owning step and, transitively, the flow.
	ErrUnknownAction = errors.New("unknown action")
)
