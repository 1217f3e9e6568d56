package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

type countingSink struct {
	acceptances int
	escalations int
	feedback    int
	lastEsc     models.EscalationEvent
}

func (c *countingSink) EmitAcceptance(models.AcceptanceEvent) { c.acceptances++ }
func (c *countingSink) EmitEscalation(ev models.EscalationEvent) {
	c.escalations++
	c.lastEsc = ev
}
func (c *countingSink) EmitFeedback(models.FeedbackPrompt) { c.feedback++ }

func TestMultiFansOutToAllSinks(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	m := NewMulti(a, b)

	m.EmitAcceptance(models.AcceptanceEvent{SessionID: "s1"})
	m.EmitEscalation(models.EscalationEvent{SessionID: "s1", Reason: models.ReasonNoDetection})
	m.EmitEscalation(models.EscalationEvent{SessionID: "s2", Reason: models.ReasonCameraFailure})
	m.EmitFeedback(models.FeedbackPrompt{SessionID: "s1"})

	for _, sink := range []*countingSink{a, b} {
		assert.Equal(t, 1, sink.acceptances)
		assert.Equal(t, 2, sink.escalations)
		assert.Equal(t, 1, sink.feedback)
		assert.Equal(t, models.ReasonCameraFailure, sink.lastEsc.Reason)
	}
}

func TestMultiSkipsNilSinks(t *testing.T) {
	a := &countingSink{}
	m := NewMulti(nil, a, nil)

	m.EmitAcceptance(models.AcceptanceEvent{SessionID: "s1"})
	assert.Equal(t, 1, a.acceptances)
}

func TestMultiEmptyIsSafe(t *testing.T) {
	m := NewMulti()
	assert.NotPanics(t, func() {
		m.EmitAcceptance(models.AcceptanceEvent{})
		m.EmitEscalation(models.EscalationEvent{})
		m.EmitFeedback(models.FeedbackPrompt{})
	})
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	l := NewLogSink()
	assert.NotPanics(t, func() {
		l.EmitAcceptance(models.AcceptanceEvent{SessionID: "s1", Method: models.MethodBarcode, Confidence: 1.0})
		l.EmitEscalation(models.EscalationEvent{SessionID: "s1", Reason: models.ReasonCameraFailure, Severity: models.SeverityCritical})
		l.EmitFeedback(models.FeedbackPrompt{SessionID: "s1", RemainingSeconds: 30})
	})
}
