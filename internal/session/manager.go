// Package session owns the verification session lifecycle: one actor per
// session serializes frame results, timer ticks, manual confirmations and
// stop requests against the session's state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/internal/signals"
	"github.com/adithyakrish0/medguardian/internal/stability"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Defaults for the session lifecycle.
const (
	DefaultWindow           = 60 * time.Second
	DefaultFeedbackInterval = 15 * time.Second
	DefaultAcceptThreshold  = 0.75
	DefaultAcceptStreak     = 3
	DefaultFailedRetention  = 10 * time.Minute
	DefaultCleanupInterval  = 1 * time.Minute

	// Buffered capacity of each session's event channel. Frame results
	// beyond this are dropped rather than blocking the submitter.
	eventQueueSize = 32

	snapshotTimeout = 2 * time.Second
)

// ErrSessionNotFound is returned for operations on unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Evaluator evaluates one frame against one medication's reference signals.
// *signals.Pipeline is the production implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, medicationID string, frame models.Frame) (*signals.Evaluation, error)
}

// Config tunes the session manager. Zero values fall back to defaults.
type Config struct {
	Window           time.Duration
	FeedbackInterval time.Duration
	AcceptThreshold  float64
	AcceptStreak     int
	FailedRetention  time.Duration
	CleanupInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.FeedbackInterval <= 0 {
		c.FeedbackInterval = DefaultFeedbackInterval
	}
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = DefaultAcceptThreshold
	}
	if c.AcceptStreak <= 0 {
		c.AcceptStreak = DefaultAcceptStreak
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = DefaultFailedRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// Manager owns all active verification sessions. Session state is mutated
// only inside each session's actor goroutine; the manager map itself is the
// only cross-session structure and is guarded by mu.
type Manager struct {
	cfg       Config
	evaluator Evaluator
	tracker   *stability.Tracker
	emitter   Emitter
	metrics   *Metrics

	mu       sync.RWMutex
	sessions map[string]*activeSession

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onCreated func(sessionID string)
	onDeleted func(sessionID string)
}

// NewManager creates a session manager. The stability tracker is injected so
// its lifecycle (and test seams) stay explicit rather than hiding in package
// state.
func NewManager(cfg Config, evaluator Evaluator, tracker *stability.Tracker, emitter Emitter) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg.withDefaults(),
		evaluator: evaluator,
		tracker:   tracker,
		emitter:   emitter,
		metrics:   newMetrics(),
		sessions:  make(map[string]*activeSession),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// SetOnSessionCreated registers a callback invoked after a session starts.
func (m *Manager) SetOnSessionCreated(fn func(sessionID string)) { m.onCreated = fn }

// SetOnSessionDeleted registers a callback invoked after a session is removed.
func (m *Manager) SetOnSessionDeleted(fn func(sessionID string)) { m.onDeleted = fn }

// StartSession creates and starts a verification session for one
// (user, medication, scheduled-time) triple.
func (m *Manager) StartSession(userID, medicationID string, scheduledTime time.Time) (string, error) {
	if userID == "" || medicationID == "" {
		return "", fmt.Errorf("start session: user and medication IDs are required")
	}

	s := &activeSession{
		id:            uuid.NewString(),
		userID:        userID,
		medicationID:  medicationID,
		scheduledTime: scheduledTime,
		startedAt:     time.Now(),
		status:        models.SessionStatusActive,
		events:        make(chan event, eventQueueSize),
	}
	s.ctx, s.cancel = context.WithCancel(m.ctx)

	m.mu.Lock()
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runSession(s)

	m.metrics.SessionStarted(s.ctx)
	log.Info().
		Str("sessionId", s.id).
		Str("userId", userID).
		Str("medicationId", medicationID).
		Int("activeSessions", count).
		Msg("Verification session started")

	if m.onCreated != nil {
		m.onCreated(s.id)
	}
	return s.id, nil
}

// SubmitFrame evaluates a frame for the session. Fire and forget: the
// collaborators run outside any session state, and the evaluated result is
// applied through the session's serialization point. Results surface as
// emitted events, not return values.
func (m *Manager) SubmitFrame(sessionID string, frame models.Frame) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}

	go func() {
		eval, evalErr := m.evaluator.Evaluate(s.ctx, s.medicationID, frame)
		if evalErr != nil && s.ctx.Err() != nil {
			// Session went away while the collaborators were running.
			return
		}
		s.post(event{typ: eventFrameResult, sequence: frame.Sequence, eval: eval, evalErr: evalErr})
	}()
	return nil
}

// ManualConfirm resolves the session by human confirmation, overriding any
// automatic outcome including a prior failure.
func (m *Manager) ManualConfirm(sessionID string, taken bool) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.post(event{typ: eventManualConfirm, taken: taken})
	return nil
}

// ReportSensorError reports camera unavailability for the session, which
// escalates immediately regardless of elapsed time.
func (m *Manager) ReportSensorError(sessionID string, sensorErr error) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.post(event{typ: eventSensorError, sensorErr: sensorErr})
	return nil
}

// StopSession cancels a session from outside. The stop request competes for
// the same serialization point as frames, so it cannot race a concurrently
// arriving frame event.
func (m *Manager) StopSession(sessionID string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.post(event{typ: eventStop})
	return nil
}

// GetSession returns a consistent snapshot of one session.
func (m *Manager) GetSession(sessionID string) (models.SessionSnapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return m.snapshot(s)
}

// ListSessions returns snapshots of all live sessions.
func (m *Manager) ListSessions() []models.SessionSnapshot {
	m.mu.RLock()
	sessions := make([]*activeSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snapshots := make([]models.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		if snap, err := m.snapshot(s); err == nil {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots
}

// ActiveSessionCount returns the number of live sessions, including failed
// sessions still inside their manual-confirm retention window.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops all session actors and waits for them to drain.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	remaining := len(m.sessions)
	m.sessions = make(map[string]*activeSession)
	m.mu.Unlock()

	if remaining > 0 {
		log.Info().Int("sessions", remaining).Msg("Session manager shut down with live sessions")
	}
}

// get looks up a live session.
func (m *Manager) get(sessionID string) (*activeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// snapshot asks the session's actor for a consistent view of its state.
func (m *Manager) snapshot(s *activeSession) (models.SessionSnapshot, error) {
	replyCh := make(chan models.SessionSnapshot, 1)
	select {
	case s.events <- event{typ: eventSnapshot, snapshotCh: replyCh}:
	case <-s.ctx.Done():
		return models.SessionSnapshot{}, ErrSessionNotFound
	case <-time.After(snapshotTimeout):
		return models.SessionSnapshot{}, fmt.Errorf("session %s: snapshot request timed out", s.id)
	}

	select {
	case snap := <-replyCh:
		return snap, nil
	case <-s.ctx.Done():
		return models.SessionSnapshot{}, ErrSessionNotFound
	case <-time.After(snapshotTimeout):
		return models.SessionSnapshot{}, fmt.Errorf("session %s: snapshot reply timed out", s.id)
	}
}

// remove deletes a session from the live map and cancels its actor context.
func (m *Manager) remove(s *activeSession) {
	m.mu.Lock()
	_, existed := m.sessions[s.id]
	delete(m.sessions, s.id)
	count := len(m.sessions)
	m.mu.Unlock()

	s.cancel()

	if !existed {
		return
	}
	log.Debug().Str("sessionId", s.id).Int("activeSessions", count).Msg("Session removed")
	if m.onDeleted != nil {
		m.onDeleted(s.id)
	}
}

// cleanupLoop evicts failed sessions whose manual-confirm retention expired.
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			var expired []*activeSession
			for _, s := range m.sessions {
				if s.retentionExpired(m.cfg.FailedRetention) {
					expired = append(expired, s)
				}
			}
			m.mu.RUnlock()

			for _, s := range expired {
				log.Info().Str("sessionId", s.id).Msg("Evicting failed session after retention window")
				m.remove(s)
			}
		}
	}
}
