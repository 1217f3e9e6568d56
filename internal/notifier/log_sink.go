package notifier

import (
	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// LogSink writes every event to the structured log. It is always wired, so
// an operator running without a broker still sees the full decision stream.
type LogSink struct{}

// NewLogSink creates the structured log sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// EmitAcceptance implements session.Emitter.
func (l *LogSink) EmitAcceptance(ev models.AcceptanceEvent) {
	log.Info().
		Str("session_id", ev.SessionID).
		Str("user_id", ev.UserID).
		Str("medication_id", ev.MedicationID).
		Str("method", string(ev.Method)).
		Float64("confidence", ev.Confidence).
		Msg("Dose verified")
}

// EmitEscalation implements session.Emitter.
func (l *LogSink) EmitEscalation(ev models.EscalationEvent) {
	evt := log.Warn()
	if ev.Severity == models.SeverityCritical {
		evt = log.Error()
	}
	evt.
		Str("session_id", ev.SessionID).
		Str("user_id", ev.UserID).
		Str("medication_id", ev.MedicationID).
		Str("reason", string(ev.Reason)).
		Str("severity", string(ev.Severity)).
		Str("message", ev.Message).
		Msg("Verification escalated to caregiver")
}

// EmitFeedback implements session.Emitter.
func (l *LogSink) EmitFeedback(ev models.FeedbackPrompt) {
	if e := log.Debug(); e.Enabled() {
		e.
			Str("session_id", ev.SessionID).
			Str("user_id", ev.UserID).
			Float64("remaining_seconds", ev.RemainingSeconds).
			Msg("Feedback prompt")
	}
}
