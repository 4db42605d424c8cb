package services

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLogger(t *testing.T, cfg domain.SessionConfiguration, sink *MockSink, clock *fakeClock) *ComplianceLogger {
	var s ports.ComplianceEventSink
	if sink != nil {
		s = sink
	}
	return NewComplianceLogger(cfg, s, nil, zaptest.NewLogger(t).Sugar(), clock.Now)
}

func TestComplianceLogger_LogEvent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLogger(t, testConfig("s1"), nil, clock)
	ctx := context.Background()

	first := l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionStarted})
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, domain.ComplianceHigh, first.Level)
	assert.Equal(t, domain.SessionID("s1"), first.SessionID)
	assert.Equal(t, clock.Now(), first.Timestamp)
	assert.NotEmpty(t, first.ID)

	clock.Advance(time.Second)
	second := l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionMinimized})
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, domain.ComplianceLow, second.Level)

	explicit := l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionMinimized, Level: domain.ComplianceHigh})
	assert.Equal(t, domain.ComplianceHigh, explicit.Level)
	assert.Equal(t, 3, l.Len())
}

func TestComplianceLogger_Disabled(t *testing.T) {
	cfg := testConfig("s1")
	cfg.Compliance.AuditLogging = false
	l := newTestLogger(t, cfg, nil, newFakeClock())

	assert.Nil(t, l.LogEvent(context.Background(), domain.EventInput{Type: domain.EventSessionStarted}))
	assert.Empty(t, l.GetSessionEvents())
}

func TestComplianceLogger_RejectsUnknownType(t *testing.T) {
	l := newTestLogger(t, testConfig("s1"), nil, newFakeClock())
	assert.Nil(t, l.LogEvent(context.Background(), domain.EventInput{Type: "made_up"}))
	assert.Equal(t, 0, l.Len())
}

func TestComplianceLogger_SinkFailureDoesNotFailCaller(t *testing.T) {
	sink := new(MockSink)
	sink.On("Append", mock.Anything, mock.Anything).Return(stderrors.New("redis down"))
	l := newTestLogger(t, testConfig("s1"), sink, newFakeClock())

	event := l.LogConsent(context.Background(), "pt", domain.ConsentRecording, true)
	require.NotNil(t, event)
	assert.Equal(t, domain.EventConsentGiven, event.Type)
	assert.Equal(t, 1, l.Len())
	sink.AssertNumberOfCalls(t, "Append", 1)
}

func TestComplianceLogger_DefensiveCopies(t *testing.T) {
	l := newTestLogger(t, testConfig("s1"), nil, newFakeClock())
	ctx := context.Background()

	event := l.LogEvent(ctx, domain.EventInput{
		Type: domain.EventParticipantJoined,
		Data: map[string]interface{}{"role": "patient"},
	})
	event.Data["role"] = "provider"

	events := l.GetSessionEvents()
	events[0].Data["role"] = "caregiver"

	stored := l.GetSessionEvents()
	require.Len(t, stored, 1)
	assert.Equal(t, "patient", stored[0].Data["role"])
	assert.Equal(t, domain.EventParticipantJoined, stored[0].Type)
}

func TestComplianceLogger_EventsSince(t *testing.T) {
	l := newTestLogger(t, testConfig("s1"), nil, newFakeClock())
	ctx := context.Background()
	l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionStarted})
	mark := l.Len()
	l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionPaused})
	l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionResumed})

	assert.Equal(t, []domain.EventType{domain.EventSessionPaused, domain.EventSessionResumed}, eventTypes(l.EventsSince(mark)))
	assert.Empty(t, l.EventsSince(10))
	assert.Len(t, l.EventsSince(-1), 3)
}

func TestComplianceLogger_Summary(t *testing.T) {
	clock := newFakeClock()
	l := newTestLogger(t, testConfig("s1"), nil, clock)
	ctx := context.Background()

	l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionStarted})
	l.LogConsent(ctx, "pt", domain.ConsentRecording, true)
	l.LogConsent(ctx, "pt", domain.ConsentRecording, false)
	l.LogTechnicalIssue(ctx, "pt", stderrors.New("camera lost"), map[string]interface{}{"operation": "x"})
	l.LogEvent(ctx, domain.EventInput{Type: domain.EventSessionMinimized})
	clock.Advance(10 * time.Minute)
	l.LogSessionEnd(ctx, 10*time.Minute, 2, domain.EndReasonNormal)

	summary := l.GetComplianceSummary()
	assert.Equal(t, 6, summary.TotalEvents)
	assert.Equal(t, 4, summary.HighComplianceEvents)
	assert.Equal(t, 2, summary.ConsentEvents)
	assert.Equal(t, 1, summary.TechnicalIssues)
	assert.Equal(t, 10*time.Minute, summary.SessionDuration)

	issue := l.GetSessionEvents()[3]
	assert.Equal(t, domain.ComplianceMedium, issue.Level)
	assert.Equal(t, "camera lost", issue.Data["error"])

	export := l.ExportComplianceData()
	assert.Equal(t, domain.SessionID("s1"), export.SessionID)
	assert.Len(t, export.Events, 6)
	assert.Equal(t, summary, export.Summary)
	assert.True(t, export.Configuration.Compliance.HIPAACompliant)
}

func TestComplianceLogger_SummaryWithoutEnd(t *testing.T) {
	l := newTestLogger(t, testConfig("s1"), nil, newFakeClock())
	l.LogEvent(context.Background(), domain.EventInput{Type: domain.EventSessionStarted})
	assert.Zero(t, l.GetComplianceSummary().SessionDuration)
}
