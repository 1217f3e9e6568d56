// Package session owns the verification session lifecycle: one actor per
// session serializes frame results, timer ticks, manual confirmations and
// stop requests against the session's state machine.
package session

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/adithyakrish0/medguardian/pkg/models"
)

// Metrics records engine counters via the global OpenTelemetry meter
// provider. Without an SDK installed the instruments are no-ops.
type Metrics struct {
	sessionsStarted   metric.Int64Counter
	sessionsAccepted  metric.Int64Counter
	sessionsEscalated metric.Int64Counter
	framesEvaluated   metric.Int64Counter
	fusedConfidence   metric.Float64Histogram
}

func newMetrics() *Metrics {
	meter := otel.Meter("medguardian/session")
	m := &Metrics{}
	var err error

	if m.sessionsStarted, err = meter.Int64Counter("medguardian.sessions.started"); err != nil {
		log.Warn().Err(err).Msg("Failed to create sessions.started counter")
	}
	if m.sessionsAccepted, err = meter.Int64Counter("medguardian.sessions.accepted"); err != nil {
		log.Warn().Err(err).Msg("Failed to create sessions.accepted counter")
	}
	if m.sessionsEscalated, err = meter.Int64Counter("medguardian.sessions.escalated"); err != nil {
		log.Warn().Err(err).Msg("Failed to create sessions.escalated counter")
	}
	if m.framesEvaluated, err = meter.Int64Counter("medguardian.frames.evaluated"); err != nil {
		log.Warn().Err(err).Msg("Failed to create frames.evaluated counter")
	}
	if m.fusedConfidence, err = meter.Float64Histogram("medguardian.frames.fused_confidence"); err != nil {
		log.Warn().Err(err).Msg("Failed to create fused_confidence histogram")
	}
	return m
}

// SessionStarted counts a new verification session.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m.sessionsStarted != nil {
		m.sessionsStarted.Add(ctx, 1)
	}
}

// SessionAccepted counts an accepted verification.
func (m *Metrics) SessionAccepted(ctx context.Context) {
	if m.sessionsAccepted != nil {
		m.sessionsAccepted.Add(ctx, 1)
	}
}

// SessionEscalated counts an escalation by reason.
func (m *Metrics) SessionEscalated(ctx context.Context, reason models.EscalationReason) {
	if m.sessionsEscalated != nil {
		m.sessionsEscalated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", string(reason)),
		))
	}
}

// FrameEvaluated counts an evaluated frame and records its fused confidence.
func (m *Metrics) FrameEvaluated(ctx context.Context, confidence float64) {
	if m.framesEvaluated != nil {
		m.framesEvaluated.Add(ctx, 1)
	}
	if m.fusedConfidence != nil {
		m.fusedConfidence.Record(ctx, confidence)
	}
}
