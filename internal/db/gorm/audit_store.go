// Package gorm provides GORM-based audit persistence for medguardian.
package gorm

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// AuditStore records session lifecycle and decision events. It implements
// session.Emitter so it can sit in the engine's emitter fan-out; emitter
// methods never block the decision path on a transactional failure, they log
// and drop instead.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new audit store.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{db: store.DB}
}

// RecordSessionStarted inserts the audit row for a newly started session.
func (s *AuditStore) RecordSessionStarted(sess models.VerificationSession) error {
	rec := SessionRecord{
		SessionID:      sess.SessionID,
		UserID:         sess.UserID,
		MedicationID:   sess.MedicationID,
		ScheduledTime:  sess.ScheduledTime.Format(time.RFC3339),
		Status:         string(models.SessionStatusActive),
		StartedAt:      sess.StartedAt.Format(time.RFC3339),
		StartedAtEpoch: sess.StartedAt.UnixMilli(),
	}
	return s.db.Create(&rec).Error
}

// EmitAcceptance persists the acceptance event and closes out the session row.
func (s *AuditStore) EmitAcceptance(ev models.AcceptanceEvent) {
	status := models.SessionStatusCompleted
	if ev.Method == models.MethodManual {
		status = models.SessionStatusManuallyResolved
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec := EventRecord{
			SessionID:     ev.SessionID,
			UserID:        ev.UserID,
			MedicationID:  ev.MedicationID,
			Kind:          "acceptance",
			Method:        sql.NullString{String: string(ev.Method), Valid: true},
			Confidence:    sql.NullFloat64{Float64: ev.Confidence, Valid: true},
			RecordedAt:    ev.Timestamp.Format(time.RFC3339),
			RecordedEpoch: ev.Timestamp.UnixMilli(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return s.closeSession(tx, ev.SessionID, status, map[string]interface{}{
			"accepted":   true,
			"method":     string(ev.Method),
			"confidence": ev.Confidence,
		}, ev.Timestamp)
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Msg("Failed to persist acceptance event")
	}
}

// EmitEscalation persists the escalation event and marks the session failed.
// A later manual resolution overwrites the row's status via EmitAcceptance.
func (s *AuditStore) EmitEscalation(ev models.EscalationEvent) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec := EventRecord{
			SessionID:     ev.SessionID,
			UserID:        ev.UserID,
			MedicationID:  ev.MedicationID,
			Kind:          "escalation",
			Reason:        sql.NullString{String: string(ev.Reason), Valid: true},
			Severity:      sql.NullString{String: string(ev.Severity), Valid: true},
			RecordedAt:    ev.Timestamp.Format(time.RFC3339),
			RecordedEpoch: ev.Timestamp.UnixMilli(),
		}
		if ev.Message != "" {
			rec.Message = sql.NullString{String: ev.Message, Valid: true}
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return s.closeSession(tx, ev.SessionID, models.SessionStatusFailed, map[string]interface{}{
			"accepted": false,
			"reason":   string(ev.Reason),
		}, ev.Timestamp)
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Msg("Failed to persist escalation event")
	}
}

// EmitFeedback is a no-op for the audit trail; feedback prompts carry no
// decision and would dominate the table at one row per interval per session.
func (s *AuditStore) EmitFeedback(models.FeedbackPrompt) {}

// closeSession updates the session row's status and outcome columns.
func (s *AuditStore) closeSession(tx *gorm.DB, sessionID string, status models.SessionStatus, outcome map[string]interface{}, at time.Time) error {
	updates := map[string]interface{}{
		"status":             string(status),
		"completed_at":       at.Format(time.RFC3339),
		"completed_at_epoch": at.UnixMilli(),
	}
	for k, v := range outcome {
		updates[k] = v
	}
	return tx.Model(&SessionRecord{}).Where("session_id = ?", sessionID).Updates(updates).Error
}

// GetSessionRecord fetches the audit row for one session.
func (s *AuditStore) GetSessionRecord(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.db.Where("session_id = ?", sessionID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentSessions returns the most recently started session rows, newest first.
func (s *AuditStore) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []SessionRecord
	err := s.db.Order("started_at_epoch DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// SessionEvents returns the audit events for one session in recording order.
func (s *AuditStore) SessionEvents(sessionID string) ([]EventRecord, error) {
	var recs []EventRecord
	err := s.db.Where("session_id = ?", sessionID).Order("recorded_epoch ASC, id ASC").Find(&recs).Error
	return recs, err
}
