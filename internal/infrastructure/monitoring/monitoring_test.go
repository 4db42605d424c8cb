package monitoring

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"telecare/internal/core/domain"
	"telecare/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_SessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.SessionStarted()
	p.SessionStarted()
	p.SessionEnded(domain.EndReasonNormal, 10*time.Minute, 95)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionsEnded.WithLabelValues("normal")))

	p.ParticipantJoined(domain.RoleProvider)
	p.ParticipantJoined(domain.RolePatient)
	p.ParticipantLeft(domain.RolePatient)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.participants.WithLabelValues("provider")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.participants.WithLabelValues("patient")))
}

func TestPrometheusCollector_ComplianceEvents(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	p.ComplianceEventRecorded(domain.EventTechnicalIssue, domain.ComplianceMedium)
	p.ComplianceEventRecorded(domain.EventConsentGiven, domain.ComplianceHigh)
	p.InvitationDelivered(false)
	p.LedgerMirrorFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(p.technicalIssues))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.complianceEvents.WithLabelValues("consent_given", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.invitationsSent.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ledgerMirrorFailed))
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) error { return nil }, 0, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("db", func(ctx context.Context) error { return stderrors.New("connection refused") }, 0, time.Second)
	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["ok"])
	assert.Equal(t, "connection refused", status.Checks["db"])
}

func TestHealthChecker_BreakerCheck(t *testing.T) {
	state := circuitbreaker.StateClosed
	h := NewHealthChecker()
	h.AddBreakerCheck("ledger_mirror", func() circuitbreaker.State { return state }, 0)
	assert.True(t, h.IsReady(context.Background()))

	state = circuitbreaker.StateOpen
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_BackgroundChecks(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("tick", func(ctx context.Context) error { return nil }, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	assert.Eventually(t, func() bool {
		return h.LastResults()["tick"] == "healthy"
	}, time.Second, 5*time.Millisecond)
}
