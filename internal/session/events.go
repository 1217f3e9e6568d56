// Package session owns the verification session lifecycle: one actor per
// session serializes frame results, timer ticks, manual confirmations and
// stop requests against the session's state machine.
package session

import (
	"github.com/adithyakrish0/medguardian/internal/signals"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Emitter receives the engine's outbound events. The escalation notifier,
// the SSE stream and the audit store all sit behind this interface; the
// decision core never talks to a transport directly.
type Emitter interface {
	EmitAcceptance(models.AcceptanceEvent)
	EmitEscalation(models.EscalationEvent)
	EmitFeedback(models.FeedbackPrompt)
}

// eventType tags the messages multiplexed into a session's actor.
type eventType int

const (
	eventFrameResult eventType = iota
	eventManualConfirm
	eventSensorError
	eventStop
	eventSnapshot
)

// event is one message for a session actor. Exactly one payload group is
// set, selected by typ.
type event struct {
	typ eventType

	// eventFrameResult
	sequence uint64
	eval     *signals.Evaluation
	evalErr  error

	// eventManualConfirm
	taken bool

	// eventSensorError
	sensorErr error

	// eventSnapshot
	snapshotCh chan models.SessionSnapshot
}
