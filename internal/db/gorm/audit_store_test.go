// Package gorm provides GORM-based audit persistence for medguardian.
package gorm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

type AuditStoreSuite struct {
	suite.Suite
	store *Store
	audit *AuditStore
}

func (s *AuditStoreSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "audit.db")

	store, err := NewStore(Config{
		Path:     dbPath,
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(s.T(), err)

	s.store = store
	s.audit = NewAuditStore(store)
}

func (s *AuditStoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *AuditStoreSuite) startSession(sessionID string) models.VerificationSession {
	sess := models.VerificationSession{
		SessionID:     sessionID,
		UserID:        "user-1",
		MedicationID:  "med-aspirin",
		ScheduledTime: time.Now().Add(-time.Minute),
		StartedAt:     time.Now(),
		Status:        models.SessionStatusActive,
	}
	s.Require().NoError(s.audit.RecordSessionStarted(sess))
	return sess
}

func (s *AuditStoreSuite) TestStoreSetup() {
	var journalMode string
	s.Require().NoError(s.store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	s.Equal("wal", journalMode)

	for _, table := range []string{"session_records", "event_records"} {
		s.True(s.store.DB.Migrator().HasTable(table), "table %q does not exist", table)
	}
}

func (s *AuditStoreSuite) TestSessionStarted() {
	s.startSession("sess-1")

	rec, err := s.audit.GetSessionRecord("sess-1")
	s.Require().NoError(err)
	s.Equal("user-1", rec.UserID)
	s.Equal("med-aspirin", rec.MedicationID)
	s.Equal("active", rec.Status)
	s.False(rec.Accepted.Valid)
	s.False(rec.CompletedAtEpoch.Valid)
}

func (s *AuditStoreSuite) TestAcceptanceClosesSession() {
	s.startSession("sess-1")

	s.audit.EmitAcceptance(models.AcceptanceEvent{
		SessionID:    "sess-1",
		UserID:       "user-1",
		MedicationID: "med-aspirin",
		Method:       models.MethodEmbedding,
		Confidence:   0.91,
		Timestamp:    time.Now(),
	})

	rec, err := s.audit.GetSessionRecord("sess-1")
	s.Require().NoError(err)
	s.Equal("completed", rec.Status)
	s.True(rec.Accepted.Valid)
	s.True(rec.Accepted.Bool)
	s.Equal("embedding", rec.Method.String)
	s.InDelta(0.91, rec.Confidence.Float64, 1e-9)
	s.True(rec.CompletedAtEpoch.Valid)

	events, err := s.audit.SessionEvents("sess-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("acceptance", events[0].Kind)
}

func (s *AuditStoreSuite) TestEscalationThenManualResolution() {
	s.startSession("sess-1")

	s.audit.EmitEscalation(models.EscalationEvent{
		SessionID:    "sess-1",
		UserID:       "user-1",
		MedicationID: "med-aspirin",
		Reason:       models.ReasonNoDetection,
		Severity:     models.SeverityNormal,
		Timestamp:    time.Now(),
	})

	rec, err := s.audit.GetSessionRecord("sess-1")
	s.Require().NoError(err)
	s.Equal("failed", rec.Status)
	s.True(rec.Accepted.Valid)
	s.False(rec.Accepted.Bool)
	s.Equal("no_detection", rec.Reason.String)

	// Caregiver confirms the dose was actually taken.
	s.audit.EmitAcceptance(models.AcceptanceEvent{
		SessionID:    "sess-1",
		UserID:       "user-1",
		MedicationID: "med-aspirin",
		Method:       models.MethodManual,
		Confidence:   1.0,
		Timestamp:    time.Now(),
	})

	rec, err = s.audit.GetSessionRecord("sess-1")
	s.Require().NoError(err)
	s.Equal("manually_resolved", rec.Status)
	s.True(rec.Accepted.Bool)
	s.Equal("manual", rec.Method.String)

	events, err := s.audit.SessionEvents("sess-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("escalation", events[0].Kind)
	s.Equal("acceptance", events[1].Kind)
}

func (s *AuditStoreSuite) TestEscalationMessagePersisted() {
	s.startSession("sess-1")

	s.audit.EmitEscalation(models.EscalationEvent{
		SessionID:    "sess-1",
		UserID:       "user-1",
		MedicationID: "med-aspirin",
		Reason:       models.ReasonCameraFailure,
		Severity:     models.SeverityCritical,
		Message:      "camera disconnected",
		Timestamp:    time.Now(),
	})

	events, err := s.audit.SessionEvents("sess-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("camera_failure", events[0].Reason.String)
	s.Equal("critical", events[0].Severity.String)
	s.Equal("camera disconnected", events[0].Message.String)
}

func (s *AuditStoreSuite) TestRecentSessionsOrderAndLimit() {
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"sess-a", "sess-b", "sess-c"} {
		sess := models.VerificationSession{
			SessionID:     id,
			UserID:        "user-1",
			MedicationID:  "med-aspirin",
			ScheduledTime: base,
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			Status:        models.SessionStatusActive,
		}
		s.Require().NoError(s.audit.RecordSessionStarted(sess))
	}

	recs, err := s.audit.RecentSessions(2)
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal("sess-c", recs[0].SessionID)
	s.Equal("sess-b", recs[1].SessionID)
}

func (s *AuditStoreSuite) TestFeedbackNotPersisted() {
	s.startSession("sess-1")

	s.audit.EmitFeedback(models.FeedbackPrompt{
		SessionID:    "sess-1",
		UserID:       "user-1",
		MedicationID: "med-aspirin",
	})

	events, err := s.audit.SessionEvents("sess-1")
	s.Require().NoError(err)
	s.Empty(events)
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}
