// Package notifier delivers verification outcomes to caregivers and
// downstream systems. Every sink implements session.Emitter; the Multi
// fan-out lets the engine emit once and reach all of them.
package notifier

import (
	"github.com/adithyakrish0/medguardian/internal/session"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Multi fans one event out to every configured sink, in order. Sinks must
// not block: the engine calls emitters from session actors.
type Multi struct {
	sinks []session.Emitter
}

// NewMulti creates a fan-out emitter. Nil sinks are skipped.
func NewMulti(sinks ...session.Emitter) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// EmitAcceptance implements session.Emitter.
func (m *Multi) EmitAcceptance(ev models.AcceptanceEvent) {
	for _, s := range m.sinks {
		s.EmitAcceptance(ev)
	}
}

// EmitEscalation implements session.Emitter.
func (m *Multi) EmitEscalation(ev models.EscalationEvent) {
	for _, s := range m.sinks {
		s.EmitEscalation(ev)
	}
}

// EmitFeedback implements session.Emitter.
func (m *Multi) EmitFeedback(ev models.FeedbackPrompt) {
	for _, s := range m.sinks {
		s.EmitFeedback(ev)
	}
}
