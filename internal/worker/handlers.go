package worker

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/internal/session"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

type startSessionRequest struct {
	UserID        string     `json:"user_id"`
	MedicationID  string     `json:"medication_id"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

type submitFrameRequest struct {
	Sequence   uint64     `json:"sequence"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Data       []byte     `json:"data,omitempty"`
}

type manualConfirmRequest struct {
	Taken bool `json:"taken"`
}

type sensorErrorRequest struct {
	Message string `json:"message"`
}

// handleHealth reports service liveness and basic gauges.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"ready":           s.ready.Load(),
		"version":         s.version,
		"uptime_seconds":  time.Since(s.startTime).Seconds(),
		"active_sessions": s.manager.ActiveSessionCount(),
		"medications":     s.registry.Len(),
		"sse_clients":     s.sseCast.ClientCount(),
	})
}

// handleListMedications returns the IDs known to the reference registry.
func (s *Service) handleListMedications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"medication_ids": s.registry.IDs(),
	})
}

// handleStartSession creates a verification session.
func (s *Service) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.MedicationID == "" {
		writeError(w, http.StatusBadRequest, "user_id and medication_id are required")
		return
	}
	if _, ok := s.registry.Get(req.MedicationID); !ok {
		writeError(w, http.StatusBadRequest, "unknown medication_id")
		return
	}

	scheduled := time.Now()
	if req.ScheduledTime != nil {
		scheduled = *req.ScheduledTime
	}

	sessionID, err := s.manager.StartSession(req.UserID, req.MedicationID, scheduled)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.audit != nil {
		if err := s.audit.RecordSessionStarted(models.VerificationSession{
			SessionID:     sessionID,
			UserID:        req.UserID,
			MedicationID:  req.MedicationID,
			ScheduledTime: scheduled,
			StartedAt:     time.Now(),
			Status:        models.SessionStatusActive,
		}); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to record session start")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// handleListSessions returns snapshots of all live sessions.
func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.manager.ListSessions(),
	})
}

// handleGetSession returns one session snapshot.
func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSubmitFrame accepts one camera frame for evaluation. The decision
// surfaces through emitted events, so the handler only acknowledges receipt.
func (s *Service) handleSubmitFrame(w http.ResponseWriter, r *http.Request) {
	var req submitFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Sequence == 0 {
		writeError(w, http.StatusBadRequest, "sequence must be >= 1")
		return
	}

	capturedAt := time.Now()
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	frame := models.Frame{
		Sequence:   req.Sequence,
		CapturedAt: capturedAt,
		Width:      req.Width,
		Height:     req.Height,
		Data:       req.Data,
	}
	if err := s.manager.SubmitFrame(chi.URLParam(r, "sessionID"), frame); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleManualConfirm resolves a session by human confirmation.
func (s *Service) handleManualConfirm(w http.ResponseWriter, r *http.Request) {
	var req manualConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.manager.ManualConfirm(chi.URLParam(r, "sessionID"), req.Taken); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSensorError reports camera unavailability for a session.
func (s *Service) handleSensorError(w http.ResponseWriter, r *http.Request) {
	var req sensorErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		req.Message = "camera unavailable"
	}
	if err := s.manager.ReportSensorError(chi.URLParam(r, "sessionID"), errors.New(req.Message)); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleStopSession cancels a session without emitting an outcome.
func (s *Service) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StopSession(chi.URLParam(r, "sessionID")); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditSessions returns recent audit rows, newest first.
func (s *Service) handleAuditSessions(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, "auditing is disabled")
		return
	}
	recs, err := s.audit.RecentSessions(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": recs})
}

// handleAuditEvents returns the audit event log for one session.
func (s *Service) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, "auditing is disabled")
		return
	}
	recs, err := s.audit.SessionEvents(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": recs})
}

// writeManagerError maps manager errors to HTTP status codes.
func writeManagerError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
