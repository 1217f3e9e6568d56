// Package gorm provides GORM-based audit persistence for medguardian.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// GORM Models

// SessionRecord is the audit row for one verification session. It is created
// when the session starts and closed out when the session reaches a terminal
// state.
type SessionRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"uniqueIndex;not null"`
	UserID         string `gorm:"index;not null"`
	MedicationID   string `gorm:"index;not null"`
	ScheduledTime  string `gorm:"not null"`
	Status         string `gorm:"type:text;check:status IN ('active', 'completed', 'manually_resolved', 'failed');default:'active';index"`
	StartedAt      string `gorm:"not null"`
	StartedAtEpoch int64  `gorm:"index:idx_session_records_started,sort:desc;not null"`

	// Outcome fields, null until the session terminates.
	Accepted         sql.NullBool
	Method           sql.NullString
	Confidence       sql.NullFloat64
	Reason           sql.NullString
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
}

func (SessionRecord) TableName() string { return "session_records" }

// BeforeCreate hook to ensure timestamps are set.
func (r *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.StartedAtEpoch == 0 {
		r.StartedAtEpoch = time.Now().UnixMilli()
	}
	if r.StartedAt == "" {
		r.StartedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// EventRecord is one audit event (acceptance or escalation) tied to a session.
// Feedback prompts are not persisted; they carry no decision.
type EventRecord struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	SessionID     string `gorm:"index;not null"`
	UserID        string `gorm:"index;not null"`
	MedicationID  string `gorm:"not null"`
	Kind          string `gorm:"type:text;check:kind IN ('acceptance', 'escalation');index;not null"`
	Method        sql.NullString
	Confidence    sql.NullFloat64
	Reason        sql.NullString
	Severity      sql.NullString
	Message       sql.NullString `gorm:"type:text"`
	RecordedAt    string         `gorm:"not null"`
	RecordedEpoch int64          `gorm:"index:idx_event_records_recorded,sort:desc;not null"`
}

func (EventRecord) TableName() string { return "event_records" }

// BeforeCreate hook to ensure timestamps are set.
func (e *EventRecord) BeforeCreate(tx *gorm.DB) error {
	if e.RecordedEpoch == 0 {
		e.RecordedEpoch = time.Now().UnixMilli()
	}
	if e.RecordedAt == "" {
		e.RecordedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}
