package sse

import "github.com/adithyakrish0/medguardian/pkg/models"

// EventEmitter adapts the broadcaster to session.Emitter so verification
// outcomes stream to connected dashboards as they happen.
type EventEmitter struct {
	b *Broadcaster
}

// NewEventEmitter wraps a broadcaster for the session engine.
func NewEventEmitter(b *Broadcaster) *EventEmitter {
	return &EventEmitter{b: b}
}

// EmitAcceptance implements session.Emitter.
func (e *EventEmitter) EmitAcceptance(ev models.AcceptanceEvent) {
	e.b.Broadcast(Event{Type: "acceptance", Payload: ev})
}

// EmitEscalation implements session.Emitter.
func (e *EventEmitter) EmitEscalation(ev models.EscalationEvent) {
	e.b.Broadcast(Event{Type: "escalation", Payload: ev})
}

// EmitFeedback implements session.Emitter.
func (e *EventEmitter) EmitFeedback(ev models.FeedbackPrompt) {
	e.b.Broadcast(Event{Type: "feedback", Payload: ev})
}
