// Package worker provides the HTTP API service for medguardian.
package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/adithyakrish0/medguardian/internal/config"
	dbgorm "github.com/adithyakrish0/medguardian/internal/db/gorm"
	"github.com/adithyakrish0/medguardian/internal/refstore"
	"github.com/adithyakrish0/medguardian/internal/session"
	"github.com/adithyakrish0/medguardian/internal/signals"
	"github.com/adithyakrish0/medguardian/internal/stability"
	"github.com/adithyakrish0/medguardian/internal/worker/sse"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

const testRegistryYAML = `medications:
  - id: med-aspirin
    name: Aspirin 100mg
    expected_barcode: "0123456789012"
    aspect_ratio: 0.45
`

// stubEvaluator returns a fixed evaluation for every frame.
type stubEvaluator struct {
	confidence float64
	method     models.VerifyMethod
}

func (e *stubEvaluator) Evaluate(ctx context.Context, medicationID string, frame models.Frame) (*signals.Evaluation, error) {
	return &signals.Evaluation{
		Breakdown: models.ConfidenceBreakdown{
			FinalConfidence: e.confidence,
			PrimaryMethod:   e.method,
		},
	}, nil
}

// testService creates a Service backed by a stub evaluator, a temp registry
// and a temp audit database.
func testService(t *testing.T) (*Service, func()) {
	t.Helper()

	tmpDir := t.TempDir()

	registryPath := filepath.Join(tmpDir, "medications.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(testRegistryYAML), 0o644))
	registry, err := refstore.Load(registryPath)
	require.NoError(t, err)

	store, err := dbgorm.NewStore(dbgorm.Config{
		Path:     filepath.Join(tmpDir, "audit.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	audit := dbgorm.NewAuditStore(store)

	tracker := stability.NewTracker(stability.Options{})
	manager := session.NewManager(session.Config{
		Window:           2 * time.Second,
		FeedbackInterval: time.Minute,
	}, &stubEvaluator{confidence: 0.9, method: models.MethodEmbedding}, tracker, audit)

	cfg := config.Default()
	svc := NewService("test-version", cfg, manager, registry, audit, sse.NewBroadcaster())
	svc.ready.Store(true)

	cleanup := func() {
		manager.Shutdown()
		_ = store.Close()
	}
	return svc, cleanup
}

func doJSON(t *testing.T, svc *Service, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func startTestSession(t *testing.T, svc *Service) string {
	t.Helper()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]string{
		"user_id":       "user-1",
		"medication_id": "med-aspirin",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])
	return resp["session_id"]
}

func TestHandleHealth(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
	assert.Equal(t, true, resp["ready"])
	assert.Equal(t, float64(1), resp["medications"])
}

func TestHandleStartSession(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, "user-1", snap.UserID)
	assert.Equal(t, models.SessionStatusActive, snap.Status)
}

func TestHandleStartSessionValidation(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing user", map[string]string{"medication_id": "med-aspirin"}},
		{"missing medication", map[string]string{"user_id": "user-1"}},
		{"unknown medication", map[string]string{"user_id": "user-1", "medication_id": "med-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, svc, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleStartSessionRecordsAudit(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	recObj, err := svc.audit.GetSessionRecord(id)
	require.NoError(t, err)
	assert.Equal(t, "med-aspirin", recObj.MedicationID)
	assert.Equal(t, "active", recObj.Status)
}

func TestHandleSubmitFrame(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/frames", map[string]interface{}{
		"sequence": 1,
		"width":    640,
		"height":   480,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleSubmitFrameValidation(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/frames", map[string]interface{}{
		"sequence": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/unknown/frames", map[string]interface{}{
		"sequence": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleManualConfirm(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/confirm", map[string]bool{"taken": true})
	require.Equal(t, http.StatusOK, rec.Code)

	// The session resolves and is removed from the live set.
	require.Eventually(t, func() bool {
		r := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id, nil)
		return r.Code == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	// And the audit trail records the manual resolution.
	events, err := svc.audit.SessionEvents(id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "acceptance", events[0].Kind)
	assert.Equal(t, "manual", events[0].Method.String)
}

func TestHandleSensorError(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/sensor-error", map[string]string{
		"message": "camera disconnected",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		events, err := svc.audit.SessionEvents(id)
		return err == nil && len(events) == 1
	}, 2*time.Second, 20*time.Millisecond)

	events, err := svc.audit.SessionEvents(id)
	require.NoError(t, err)
	assert.Equal(t, "escalation", events[0].Kind)
	assert.Equal(t, "camera_failure", events[0].Reason.String)
	assert.Equal(t, "critical", events[0].Severity.String)
}

func TestHandleStopSession(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodDelete, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Eventually(t, func() bool {
		r := doJSON(t, svc, http.MethodGet, "/api/sessions/"+id, nil)
		return r.Code == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	// Stopping emits no outcome events.
	events, err := svc.audit.SessionEvents(id)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHandleListSessions(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	startTestSession(t, svc)
	startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []models.SessionSnapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Sessions, 2)
}

func TestHandleListMedications(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodGet, "/api/medications", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		MedicationIDs []string `json:"medication_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"med-aspirin"}, resp.MedicationIDs)
}

func TestHandleAuditSessions(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	startTestSession(t, svc)

	rec := doJSON(t, svc, http.MethodGet, "/api/audit/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []dbgorm.SessionRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "med-aspirin", resp.Sessions[0].MedicationID)
}
