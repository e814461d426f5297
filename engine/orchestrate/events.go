package orchestrate

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/LoomworksAI/apiloom/pkg/natsutil"
)

// Flow lifecycle subjects. Consumers subscribe to "loom.flow.>" for the
// whole stream.
const (
	SubjectFlowCreated   = "loom.flow.created"
	SubjectFlowStarted   = "loom.flow.started"
	SubjectFlowCompleted = "loom.flow.completed"
	SubjectFlowFailed    = "loom.flow.failed"
	SubjectStepCompleted = "loom.flow.step.completed"
)

// FlowEvent is the JSON payload published on every lifecycle subject.
type FlowEvent struct {
	FlowID string    `json:"flow_id"`
	Name   string    `json:"name,omitempty"`
	StepID string    `json:"step_id,omitempty"`
	Action string    `json:"action,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher emits flow lifecycle events over NATS. A nil publisher is
// valid and drops everything, so the engine works without a bus. Publish
// failures are logged, never surfaced: events are advisory.
type EventPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewEventPublisher(nc *nats.Conn, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{nc: nc, logger: logger}
}

func (p *EventPublisher) publish(ctx context.Context, subject string, ev FlowEvent) {
	if p == nil || p.nc == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := natsutil.Publish(ctx, p.nc, subject, ev); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "flow_id", ev.FlowID, "error", err)
	}
}

func (p *EventPublisher) FlowCreated(ctx context.Context, flowID, name string) {
	p.publish(ctx, SubjectFlowCreated, FlowEvent{FlowID: flowID, Name: name})
}

func (p *EventPublisher) FlowStarted(ctx context.Context, flowID string) {
	p.publish(ctx, SubjectFlowStarted, FlowEvent{FlowID: flowID})
}

func (p *EventPublisher) FlowCompleted(ctx context.Context, flowID string) {
	p.publish(ctx, SubjectFlowCompleted, FlowEvent{FlowID: flowID})
}

func (p *EventPublisher) FlowFailed(ctx context.Context, flowID string, err error) {
	ev := FlowEvent{FlowID: flowID}
	if err != nil {
		ev.Error = err.Error()
	}
	p.publish(ctx, SubjectFlowFailed, ev)
}

func (p *EventPublisher) StepCompleted(ctx context.Context, flowID, stepID string, action Action) {
	p.publish(ctx, SubjectStepCompleted, FlowEvent{FlowID: flowID, StepID: stepID, Action: string(action)})
}
