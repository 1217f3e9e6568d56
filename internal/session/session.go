// Package session owns the verification session lifecycle: one actor per
// session serializes frame results, timer ticks, manual confirmations and
// stop requests against the session's state machine.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// activeSession is one live verification attempt. All fields below the
// marker are owned exclusively by the session's actor goroutine; nothing
// else reads or writes them.
type activeSession struct {
	id            string
	userID        string
	medicationID  string
	scheduledTime time.Time
	startedAt     time.Time

	events chan event
	ctx    context.Context
	cancel context.CancelFunc

	// terminalAtNano is set once when the session fails, read by the
	// manager's cleanup loop.
	terminalAtNano atomic.Int64

	// Actor-owned state.
	status       models.SessionStatus
	streak       int
	framesSeen   int
	lastSeq      uint64
	lastFeedback time.Time
	outcome      *models.Outcome
}

// post delivers an event to the session actor without blocking the caller.
// Events for dead or saturated sessions are dropped and logged.
func (s *activeSession) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		log.Debug().Str("sessionId", s.id).Int("eventType", int(ev.typ)).Msg("Event dropped, session closed")
	default:
		log.Warn().Str("sessionId", s.id).Int("eventType", int(ev.typ)).Msg("Event dropped, session queue full")
	}
}

// retentionExpired reports whether a failed session has outlived its
// manual-confirm retention window.
func (s *activeSession) retentionExpired(retention time.Duration) bool {
	terminal := s.terminalAtNano.Load()
	if terminal == 0 {
		return false
	}
	return time.Since(time.Unix(0, terminal)) > retention
}

// runSession is the actor loop. The timeout timer runs on wall clock from
// startedAt, so a session that never receives a frame still times out at the
// configured window.
func (m *Manager) runSession(s *activeSession) {
	defer m.wg.Done()

	timeout := time.NewTimer(m.cfg.Window)
	defer timeout.Stop()
	feedback := time.NewTicker(m.cfg.FeedbackInterval)
	defer feedback.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-timeout.C:
			if s.status == models.SessionStatusActive {
				s.status = models.SessionStatusTimedOut
				m.fail(s, models.ReasonNoDetection, "no verified detection within the session window; manual confirmation offered")
			}

		case <-feedback.C:
			m.maybeEmitFeedback(s)

		case ev := <-s.events:
			switch ev.typ {
			case eventFrameResult:
				m.applyFrameResult(s, ev)
			case eventManualConfirm:
				m.applyManualConfirm(s, ev.taken)
			case eventSensorError:
				m.applySensorError(s, ev.sensorErr)
			case eventStop:
				m.applyStop(s)
				return
			case eventSnapshot:
				ev.snapshotCh <- m.buildSnapshot(s)
			}
		}
	}
}

// applyFrameResult folds one evaluated frame into the session state. The
// session is re-validated as Active here because the collaborators ran
// without holding session state and the session may have terminated
// meanwhile.
func (m *Manager) applyFrameResult(s *activeSession, ev event) {
	if s.status != models.SessionStatusActive {
		log.Debug().
			Str("sessionId", s.id).
			Str("status", string(s.status)).
			Uint64("sequence", ev.sequence).
			Msg("Frame result ignored, session no longer active")
		return
	}

	// Ordering gate: duplicates and out-of-order frames are dropped, never
	// treated as a session failure.
	if ev.sequence <= s.lastSeq {
		log.Debug().
			Str("sessionId", s.id).
			Uint64("sequence", ev.sequence).
			Uint64("lastSequence", s.lastSeq).
			Msg("Out-of-order frame dropped")
		return
	}
	s.lastSeq = ev.sequence

	if ev.evalErr != nil {
		// Collaborator failures escalate; retrying a known-broken signal
		// chain risks silently never verifying a dose.
		m.fail(s, models.ReasonDetectionError, ev.evalErr.Error())
		return
	}

	s.framesSeen++
	breakdown := ev.eval.Breakdown
	m.metrics.FrameEvaluated(s.ctx, breakdown.FinalConfidence)

	positive := breakdown.PrimaryMethod != models.MethodNone
	verdict := m.tracker.Record(s.medicationID, positive, breakdown.FinalConfidence)

	if breakdown.FinalConfidence >= m.cfg.AcceptThreshold {
		s.streak++
	} else {
		// One weak frame breaks the streak. The stability window keeps its
		// own majority rule and is not reset here.
		s.streak = 0
	}

	log.Debug().
		Str("sessionId", s.id).
		Float64("confidence", breakdown.FinalConfidence).
		Int("streak", s.streak).
		Int("windowPositives", verdict.PositiveCount).
		Bool("stable", verdict.IsStable).
		Msg("Frame applied")

	if s.streak >= m.cfg.AcceptStreak && verdict.IsStable {
		m.accept(s, breakdown)
	}
}

// accept drives Active -> Stable -> Completed and emits the acceptance.
func (m *Manager) accept(s *activeSession, breakdown models.ConfidenceBreakdown) {
	if s.status.Terminal() {
		log.Warn().Str("sessionId", s.id).Str("status", string(s.status)).Msg("Acceptance on terminal session ignored")
		return
	}
	s.status = models.SessionStatusStable
	log.Debug().Str("sessionId", s.id).Msg("Session stable")
	s.status = models.SessionStatusCompleted
	s.outcome = &models.Outcome{
		Accepted:   true,
		Method:     breakdown.PrimaryMethod,
		Confidence: breakdown.FinalConfidence,
	}

	// A completed verification must not bleed stability into the next
	// attempt for the same medication.
	m.tracker.Clear(s.medicationID)
	m.metrics.SessionAccepted(s.ctx)

	m.emitter.EmitAcceptance(models.AcceptanceEvent{
		SessionID:    s.id,
		UserID:       s.userID,
		MedicationID: s.medicationID,
		Method:       breakdown.PrimaryMethod,
		Confidence:   breakdown.FinalConfidence,
		Timestamp:    time.Now(),
	})

	log.Info().
		Str("sessionId", s.id).
		Str("method", string(breakdown.PrimaryMethod)).
		Float64("confidence", breakdown.FinalConfidence).
		Msg("Medication verified")

	m.remove(s)
}

// fail transitions the session to Failed and emits the escalation exactly
// once. Failed sessions stay resident so manual confirmation can still
// resolve them.
func (m *Manager) fail(s *activeSession, reason models.EscalationReason, message string) {
	if s.status.Terminal() {
		log.Warn().
			Str("sessionId", s.id).
			Str("status", string(s.status)).
			Str("reason", string(reason)).
			Msg("Failure on terminal session ignored")
		return
	}
	s.status = models.SessionStatusFailed
	s.outcome = &models.Outcome{Accepted: false, Reason: reason}
	s.terminalAtNano.Store(time.Now().UnixNano())

	severity := models.SeverityFor(reason)
	m.metrics.SessionEscalated(s.ctx, reason)

	m.emitter.EmitEscalation(models.EscalationEvent{
		SessionID:    s.id,
		UserID:       s.userID,
		MedicationID: s.medicationID,
		Reason:       reason,
		Severity:     severity,
		Timestamp:    time.Now(),
		Message:      message,
	})

	log.Warn().
		Str("sessionId", s.id).
		Str("reason", string(reason)).
		Str("severity", string(severity)).
		Msg("Verification escalated")
}

// applyManualConfirm resolves the session by human override. Allowed from
// Active and from Failed; a second resolution is a warned no-op.
func (m *Manager) applyManualConfirm(s *activeSession, taken bool) {
	if s.status == models.SessionStatusCompleted || s.status == models.SessionStatusManuallyResolved {
		log.Warn().Str("sessionId", s.id).Str("status", string(s.status)).Msg("Manual confirm on resolved session ignored")
		return
	}

	prior := s.status
	s.status = models.SessionStatusManuallyResolved

	if taken {
		s.outcome = &models.Outcome{Accepted: true, Method: models.MethodManual, Confidence: 1.0}
		m.metrics.SessionAccepted(s.ctx)
		m.emitter.EmitAcceptance(models.AcceptanceEvent{
			SessionID:    s.id,
			UserID:       s.userID,
			MedicationID: s.medicationID,
			Method:       models.MethodManual,
			Confidence:   1.0,
			Timestamp:    time.Now(),
		})
	} else {
		s.outcome = &models.Outcome{Accepted: false, Reason: models.ReasonManualOverrideRequested}
		m.metrics.SessionEscalated(s.ctx, models.ReasonManualOverrideRequested)
		m.emitter.EmitEscalation(models.EscalationEvent{
			SessionID:    s.id,
			UserID:       s.userID,
			MedicationID: s.medicationID,
			Reason:       models.ReasonManualOverrideRequested,
			Severity:     models.SeverityNormal,
			Timestamp:    time.Now(),
			Message:      "user declined manual confirmation",
		})
	}

	log.Info().
		Str("sessionId", s.id).
		Str("priorStatus", string(prior)).
		Bool("taken", taken).
		Msg("Session manually resolved")

	m.remove(s)
}

// applySensorError escalates camera unavailability immediately, bypassing
// the session window.
func (m *Manager) applySensorError(s *activeSession, sensorErr error) {
	message := "camera unavailable"
	if sensorErr != nil {
		message = sensorErr.Error()
	}
	m.fail(s, models.ReasonCameraFailure, message)
}

// applyStop cancels the session without an outcome; the caller no longer
// cares and no acceptance or escalation is owed.
func (m *Manager) applyStop(s *activeSession) {
	log.Info().Str("sessionId", s.id).Str("status", string(s.status)).Msg("Session stopped by caller")
	m.remove(s)
}

// maybeEmitFeedback emits the periodic nudge while the session is active,
// throttled by the last emission time.
func (m *Manager) maybeEmitFeedback(s *activeSession) {
	if s.status != models.SessionStatusActive {
		return
	}
	if !s.lastFeedback.IsZero() && time.Since(s.lastFeedback) < m.cfg.FeedbackInterval {
		return
	}
	remaining := m.cfg.Window - time.Since(s.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	s.lastFeedback = time.Now()

	m.emitter.EmitFeedback(models.FeedbackPrompt{
		SessionID:        s.id,
		UserID:           s.userID,
		MedicationID:     s.medicationID,
		RemainingSeconds: remaining.Seconds(),
		Timestamp:        time.Now(),
	})
}

// buildSnapshot renders the actor-owned state into a read-only view.
func (m *Manager) buildSnapshot(s *activeSession) models.SessionSnapshot {
	elapsed := time.Since(s.startedAt)
	remaining := m.cfg.Window - elapsed
	if remaining < 0 || s.status != models.SessionStatusActive {
		remaining = 0
	}
	return models.SessionSnapshot{
		SessionID:      s.id,
		UserID:         s.userID,
		MedicationID:   s.medicationID,
		ScheduledTime:  s.scheduledTime,
		StartedAt:      s.startedAt,
		Status:         s.status,
		HighConfStreak: s.streak,
		FramesSeen:     s.framesSeen,
		Elapsed:        elapsed.Seconds(),
		Remaining:      remaining.Seconds(),
		Outcome:        s.outcome,
	}
}
