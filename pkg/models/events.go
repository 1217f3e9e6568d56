// Package models contains domain models for medguardian.
package models

import "time"

// EscalationReason classifies why a session was escalated to a human.
type EscalationReason string

const (
	ReasonNoDetection             EscalationReason = "no_detection"
	ReasonCameraFailure           EscalationReason = "camera_failure"
	ReasonDetectionError          EscalationReason = "detection_error"
	ReasonManualOverrideRequested EscalationReason = "manual_override_requested"
)

// Severity grades an escalation for the caregiver notification layer.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps an escalation reason to its notification severity.
// Camera failures are critical regardless of elapsed session time.
func SeverityFor(reason EscalationReason) Severity {
	switch reason {
	case ReasonCameraFailure:
		return SeverityCritical
	case ReasonDetectionError:
		return SeverityHigh
	default:
		return SeverityNormal
	}
}

// AcceptanceEvent is emitted exactly once when a session verifies a dose,
// either automatically (stable high confidence) or by manual confirmation.
type AcceptanceEvent struct {
	SessionID    string       `json:"session_id"`
	UserID       string       `json:"user_id"`
	MedicationID string       `json:"medication_id"`
	Method       VerifyMethod `json:"method"`
	Confidence   float64      `json:"confidence"`
	Timestamp    time.Time    `json:"timestamp"`
}

// EscalationEvent is emitted exactly once when a session fails and
// responsibility transfers to a human.
type EscalationEvent struct {
	SessionID    string           `json:"session_id"`
	UserID       string           `json:"user_id"`
	MedicationID string           `json:"medication_id"`
	Reason       EscalationReason `json:"reason"`
	Severity     Severity         `json:"severity"`
	Timestamp    time.Time        `json:"timestamp"`
	Message      string           `json:"message,omitempty"`
}

// FeedbackPrompt is a non-terminal periodic nudge to the user while a
// session is still active.
type FeedbackPrompt struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	MedicationID     string    `json:"medication_id"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	Timestamp        time.Time `json:"timestamp"`
}
