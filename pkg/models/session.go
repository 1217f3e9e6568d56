// Package models contains domain models for medguardian.
package models

import "time"

// SessionStatus represents the lifecycle state of a verification session.
type SessionStatus string

const (
	SessionStatusActive           SessionStatus = "active"
	SessionStatusStable           SessionStatus = "stable"
	SessionStatusTimedOut         SessionStatus = "timed_out"
	SessionStatusManuallyResolved SessionStatus = "manually_resolved"
	SessionStatusFailed           SessionStatus = "failed"
	SessionStatusCompleted        SessionStatus = "completed"
)

// Terminal reports whether the status permits no further automatic
// transitions. Failed sessions are terminal for the frame pipeline but can
// still be resolved by manual confirmation.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusManuallyResolved, SessionStatusFailed:
		return true
	}
	return false
}

// VerifyMethod identifies which signal (or human) decided a verification.
type VerifyMethod string

const (
	MethodBarcode   VerifyMethod = "barcode"
	MethodEmbedding VerifyMethod = "embedding"
	MethodOCR       VerifyMethod = "ocr"
	MethodDetector  VerifyMethod = "detector"
	MethodGeometry  VerifyMethod = "geometry"
	MethodManual    VerifyMethod = "manual"
	MethodNone      VerifyMethod = "none"
)

// Outcome is the final result of a terminated session.
type Outcome struct {
	Accepted   bool             `json:"accepted"`
	Method     VerifyMethod     `json:"method,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Reason     EscalationReason `json:"reason,omitempty"`
}

// VerificationSession is one bounded-time attempt to verify that a specific
// medication dose was taken by a specific user.
type VerificationSession struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	MedicationID   string        `json:"medication_id"`
	ScheduledTime  time.Time     `json:"scheduled_time"`
	StartedAt      time.Time     `json:"started_at"`
	Status         SessionStatus `json:"status"`
	HighConfStreak int           `json:"high_confidence_streak"`
	LastFeedbackAt time.Time     `json:"last_feedback_at,omitempty"`
	Outcome        *Outcome      `json:"outcome,omitempty"`
}

// SessionSnapshot is a read-only view of a live session, answered through the
// session's own serialization point so it is never torn.
type SessionSnapshot struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	MedicationID   string        `json:"medication_id"`
	ScheduledTime  time.Time     `json:"scheduled_time"`
	StartedAt      time.Time     `json:"started_at"`
	Status         SessionStatus `json:"status"`
	HighConfStreak int           `json:"high_confidence_streak"`
	FramesSeen     int           `json:"frames_seen"`
	Elapsed        float64       `json:"elapsed_seconds"`
	Remaining      float64       `json:"remaining_seconds"`
	Outcome        *Outcome      `json:"outcome,omitempty"`
}
