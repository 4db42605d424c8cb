package monitoring

import (
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	sessionsActive     prometheus.Gauge
	sessionsStarted    prometheus.Counter
	sessionStartFailed prometheus.Counter
	sessionsEnded      *prometheus.CounterVec
	participants       *prometheus.GaugeVec
	complianceEvents   *prometheus.CounterVec
	technicalIssues    prometheus.Counter
	ledgerMirrorFailed prometheus.Counter
	invitationsSent    *prometheus.CounterVec
	sessionDuration    prometheus.Histogram
	complianceScore    prometheus.Histogram
	connectionQuality  prometheus.Histogram
}

var _ ports.SessionMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the session metrics with reg.
// A nil reg means the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telecare_sessions_active",
			Help: "Number of sessions started and not yet ended",
		}),
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecare_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		sessionStartFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecare_session_start_failures_total",
			Help: "Total number of failed session starts",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_sessions_ended_total",
			Help: "Total number of sessions ended by reason",
		}, []string{"reason"}),
		participants: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telecare_participants_connected",
			Help: "Connected participants by role",
		}, []string{"role"}),
		complianceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_compliance_events_total",
			Help: "Compliance ledger entries by type and level",
		}, []string{"type", "level"}),
		technicalIssues: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecare_technical_issues_total",
			Help: "Technical issues recorded in compliance ledgers",
		}),
		ledgerMirrorFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecare_ledger_mirror_failures_total",
			Help: "Ledger entries that could not be mirrored to durable storage",
		}),
		invitationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_invitations_delivered_total",
			Help: "Invitation delivery attempts by outcome",
		}, []string{"outcome"}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telecare_session_duration_seconds",
			Help:    "Duration of ended sessions",
			Buckets: []float64{60, 300, 600, 900, 1800, 2700, 3600, 7200},
		}),
		complianceScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telecare_compliance_score",
			Help:    "Compliance score of ended sessions (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		connectionQuality: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telecare_connection_quality",
			Help:    "Connection quality samples reported by participants (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (p *PrometheusCollector) SessionStarted() {
	p.sessionsStarted.Inc()
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) SessionStartFailed() {
	p.sessionStartFailed.Inc()
}

func (p *PrometheusCollector) SessionEnded(reason domain.EndReason, duration time.Duration, complianceScore int) {
	p.sessionsActive.Dec()
	p.sessionsEnded.WithLabelValues(string(reason)).Inc()
	p.sessionDuration.Observe(duration.Seconds())
	p.complianceScore.Observe(float64(complianceScore))
}

func (p *PrometheusCollector) ParticipantJoined(role domain.Role) {
	p.participants.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) ParticipantLeft(role domain.Role) {
	p.participants.WithLabelValues(string(role)).Dec()
}

func (p *PrometheusCollector) ComplianceEventRecorded(eventType domain.EventType, level domain.ComplianceLevel) {
	p.complianceEvents.WithLabelValues(string(eventType), string(level)).Inc()
	if eventType == domain.EventTechnicalIssue {
		p.technicalIssues.Inc()
	}
}

func (p *PrometheusCollector) LedgerMirrorFailed() {
	p.ledgerMirrorFailed.Inc()
}

func (p *PrometheusCollector) InvitationDelivered(ok bool) {
	outcome := "delivered"
	if !ok {
		outcome = "failed"
	}
	p.invitationsSent.WithLabelValues(outcome).Inc()
}

// RecordConnectionQuality observes one RTCP-derived quality sample.
func (p *PrometheusCollector) RecordConnectionQuality(quality float64) {
	p.connectionQuality.Observe(quality)
}
