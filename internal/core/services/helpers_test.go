package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"telecare/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockMediaCapability struct {
	mock.Mock
}

func (m *MockMediaCapability) AcquireLocalMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaHandle, error) {
	args := m.Called(ctx, constraints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaHandle), args.Error(1)
}

func (m *MockMediaCapability) AcquireScreenCapture(ctx context.Context, constraints domain.ScreenCaptureConstraints) (*domain.MediaHandle, error) {
	args := m.Called(ctx, constraints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaHandle), args.Error(1)
}

func (m *MockMediaCapability) Release(ctx context.Context, handle *domain.MediaHandle) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, invitation domain.Invitation) error {
	args := m.Called(ctx, invitation)
	return args.Error(0)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Store(ctx context.Context, export *domain.ComplianceExport) error {
	args := m.Called(ctx, export)
	return args.Error(0)
}

func (m *MockArchive) Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ComplianceExport), args.Error(1)
}

func (m *MockArchive) List(ctx context.Context) ([]domain.SessionID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SessionID), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Append(ctx context.Context, event domain.ComplianceEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(id string) domain.SessionConfiguration {
	return domain.SessionConfiguration{
		SessionID:          domain.SessionID(id),
		MaxParticipants:    4,
		ScreenShareEnabled: true,
		InvitationTTL:      domain.DefaultInvitationTTL,
		Compliance: domain.ComplianceSettings{
			AuditLogging:      true,
			HIPAACompliant:    true,
			DataRetentionDays: 2555,
		},
		Media: domain.DefaultMediaSettings(),
	}
}

func localHandle() *domain.MediaHandle {
	return &domain.MediaHandle{ID: "local-1", Kind: domain.MediaKindLocal, Tracks: []string{"audio", "video"}}
}

func screenHandle() *domain.MediaHandle {
	return &domain.MediaHandle{ID: "screen-1", Kind: domain.MediaKindScreen, Tracks: []string{"screen"}}
}

// okMedia returns a capability that always succeeds.
func okMedia() *MockMediaCapability {
	media := new(MockMediaCapability)
	media.On("AcquireLocalMedia", mock.Anything, mock.Anything).Return(localHandle(), nil)
	media.On("AcquireScreenCapture", mock.Anything, mock.Anything).Return(screenHandle(), nil)
	media.On("Release", mock.Anything, mock.Anything).Return(nil)
	return media
}

type testSession struct {
	svc   *TelehealthSessionService
	media *MockMediaCapability
	clock *fakeClock
}

func newTestSession(t *testing.T, cfg domain.SessionConfiguration, deps Dependencies) *testSession {
	t.Helper()
	clock := newFakeClock()
	if deps.Media == nil {
		deps.Media = okMedia()
	}
	deps.Logger = zaptest.NewLogger(t).Sugar()
	deps.Clock = clock.Now
	svc, err := NewTelehealthSessionService(cfg, deps)
	require.NoError(t, err)
	return &testSession{svc: svc, media: deps.Media.(*MockMediaCapability), clock: clock}
}

// startedSession starts a session with a connected provider "dr" and patient "pt".
func startedSession(t *testing.T, cfg domain.SessionConfiguration, deps Dependencies) *testSession {
	t.Helper()
	ts := newTestSession(t, cfg, deps)
	ctx := context.Background()
	_, err := ts.svc.StartSession(ctx)
	require.NoError(t, err)
	_, err = ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "dr", Name: "Dr. Ana Souza", Role: domain.RoleProvider})
	require.NoError(t, err)
	_, err = ts.svc.AddParticipant(ctx, domain.NewParticipant{ID: "pt", Name: "Sam Lee", Role: domain.RolePatient})
	require.NoError(t, err)
	return ts
}

func eventTypes(events []domain.ComplianceEvent) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
