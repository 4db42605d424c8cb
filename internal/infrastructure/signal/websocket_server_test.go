package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/core/services"
	"telecare/internal/infrastructure/middleware"
	"telecare/internal/infrastructure/webrtc"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

type stubMedia struct{}

func (stubMedia) AcquireLocalMedia(ctx context.Context, c domain.MediaConstraints) (*domain.MediaHandle, error) {
	return &domain.MediaHandle{ID: "local", Kind: domain.MediaKindLocal}, nil
}

func (stubMedia) AcquireScreenCapture(ctx context.Context, c domain.ScreenCaptureConstraints) (*domain.MediaHandle, error) {
	return &domain.MediaHandle{ID: "screen", Kind: domain.MediaKindScreen}, nil
}

func (stubMedia) Release(ctx context.Context, h *domain.MediaHandle) error { return nil }

type fixture struct {
	server   *httptest.Server
	sessions *services.SessionRegistry
	auth     ports.AuthService
	session  ports.TelehealthSession
}

func newFixture(t *testing.T, limiter *middleware.LimiterStore) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	registry := services.NewSessionRegistry(services.Dependencies{Media: stubMedia{}, Logger: logger})
	auth := services.NewAuthService("test-secret", time.Hour, nil)

	sess, err := registry.Create(context.Background(), domain.SessionConfiguration{
		SessionID:          "s1",
		MaxParticipants:    4,
		ScreenShareEnabled: true,
		InvitationTTL:      domain.DefaultInvitationTTL,
		Media:              domain.DefaultMediaSettings(),
	})
	require.NoError(t, err)

	ws := NewWebSocketServer(Config{PingInterval: time.Hour}, Dependencies{
		Sessions: registry,
		Auth:     auth,
		Quality:  webrtc.NewQualityMonitor(webrtc.DefaultQualityThresholds(), logger),
		Limiter:  limiter,
		Logger:   logger,
	})
	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(srv.Close)

	return &fixture{server: srv, sessions: registry, auth: auth, session: sess}
}

func (f *fixture) url(sessionID, participantID, token string) string {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("participant_id", participantID)
	if token != "" {
		q.Set("token", token)
	}
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + q.Encode()
}

func (f *fixture) dial(t *testing.T, participantID domain.ParticipantID, role domain.Role) *websocket.Conn {
	t.Helper()
	token, _, err := f.auth.IssueToken("s1", participantID, role)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(f.url("s1", string(participantID), token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type reply struct {
	Type      string                    `json:"type"`
	RequestID string                    `json:"request_id"`
	OK        bool                      `json:"ok"`
	Change    json.RawMessage           `json:"change"`
	Error     *middleware.ErrorResponse `json:"error"`
	Origin    domain.ParticipantID      `json:"origin"`
}

func send(t *testing.T, conn *websocket.Conn, typ, requestID string, payload interface{}) reply {
	t.Helper()
	msg := map[string]interface{}{"type": typ, "request_id": requestID}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var r reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestHandleWebSocket_RejectsBadCredentials(t *testing.T) {
	f := newFixture(t, nil)
	token, _, err := f.auth.IssueToken("s1", "dr", domain.RoleProvider)
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"missing token", f.url("s1", "dr", ""), http.StatusUnauthorized},
		{"garbage token", f.url("s1", "dr", "nope"), http.StatusUnauthorized},
		{"other participant", f.url("s1", "pt", token), http.StatusForbidden},
		{"missing ids", f.url("", "", token), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHandleWebSocket_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	token, _, err := f.auth.IssueToken("ghost", "dr", domain.RoleProvider)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(f.url("ghost", "dr", token), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleWebSocket_CommandFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	dr := f.dial(t, "dr", domain.RoleProvider)

	r := send(t, dr, CmdStartSession, "1", nil)
	require.True(t, r.OK, "%+v", r.Error)
	assert.Equal(t, TypeResult, r.Type)
	assert.Equal(t, "1", r.RequestID)

	_, err := f.session.AddParticipant(ctx, domain.NewParticipant{ID: "dr", Name: "Dr. Ana Souza", Role: domain.RoleProvider})
	require.NoError(t, err)
	_, err = f.session.AddParticipant(ctx, domain.NewParticipant{ID: "pt", Name: "Sam Lee", Role: domain.RolePatient})
	require.NoError(t, err)

	pt := f.dial(t, "pt", domain.RolePatient)

	r = send(t, dr, CmdMuteParticipant, "2", map[string]interface{}{"participant_id": "pt", "muted": true})
	require.True(t, r.OK, "%+v", r.Error)

	note := read(t, pt)
	assert.Equal(t, NotificationSessionChanged, note.Type)
	assert.Equal(t, domain.ParticipantID("dr"), note.Origin)

	p, err := f.session.GetParticipant("pt")
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	r = send(t, pt, CmdEndSession, "3", nil)
	assert.False(t, r.OK)
	require.NotNil(t, r.Error)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", r.Error.Error)
	assert.Equal(t, "3", r.RequestID)

	r = send(t, pt, "teleport", "4", nil)
	require.NotNil(t, r.Error)
	assert.Equal(t, "INVALID_INPUT", r.Error.Error)

	r = send(t, pt, CmdEndSession, "5", "not-an-object")
	require.NotNil(t, r.Error)
	assert.Equal(t, "INVALID_INPUT", r.Error.Error)

	r = send(t, pt, CmdGetState, "6", nil)
	require.True(t, r.OK)
	var state domain.SessionState
	require.NoError(t, json.Unmarshal(r.Change, &state))
	assert.Equal(t, domain.SessionActive, state.Session.Status)
	assert.Len(t, state.Participants, 2)

	r = send(t, dr, CmdEndSession, "7", map[string]interface{}{"reason": "provider_ended"})
	require.True(t, r.OK, "%+v", r.Error)
	var result domain.EndResult
	require.NoError(t, json.Unmarshal(r.Change, &result))
	assert.Equal(t, domain.SessionEnded, result.Change.Session.Status)
	assert.NotEmpty(t, result.Export.Events)
}

func TestHandleWebSocket_RTCPReport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.session.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.session.AddParticipant(ctx, domain.NewParticipant{ID: "pt", Name: "Sam Lee", Role: domain.RolePatient})
	require.NoError(t, err)

	raw, err := (&rtcp.ReceiverReport{
		SSRC:    1,
		Reports: []rtcp.ReceptionReport{{SSRC: 2}},
	}).Marshal()
	require.NoError(t, err)

	pt := f.dial(t, "pt", domain.RolePatient)
	r := send(t, pt, CmdRTCPReport, "q1", map[string]interface{}{"packets": raw})
	require.True(t, r.OK, "%+v", r.Error)

	p, err := f.session.GetParticipant("pt")
	require.NoError(t, err)
	require.NotNil(t, p.ConnectionQuality)
	assert.Equal(t, 100.0, *p.ConnectionQuality)

	r = send(t, pt, CmdRTCPReport, "q2", map[string]interface{}{"packets": []byte{1, 2}})
	require.NotNil(t, r.Error)
	assert.Equal(t, "INVALID_INPUT", r.Error.Error)
}

func TestHandleWebSocket_RateLimited(t *testing.T) {
	f := newFixture(t, middleware.NewLimiterStore(rate.Limit(0), 1))
	dr := f.dial(t, "dr", domain.RoleProvider)

	r := send(t, dr, CmdGetState, "a", nil)
	assert.True(t, r.OK)

	r = send(t, dr, CmdGetState, "b", nil)
	require.NotNil(t, r.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", r.Error.Error)
	assert.Equal(t, "b", r.RequestID)
}

func TestHandleWebSocket_ReconnectReplacesConnection(t *testing.T) {
	f := newFixture(t, nil)
	ws := NewWebSocketServer(Config{}, Dependencies{Sessions: f.sessions, Auth: f.auth})
	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer srv.Close()

	token, _, err := f.auth.IssueToken("s1", "dr", domain.RoleProvider)
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session_id=s1&participant_id=dr&token=" + token

	first, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer first.Close()
	second, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer second.Close()

	_ = first.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)

	r := send(t, second, CmdGetState, "x", nil)
	assert.True(t, r.OK)
	assert.Equal(t, []domain.ParticipantID{"dr"}, ws.ConnectedParticipants("s1"))
}
