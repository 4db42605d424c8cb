package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/internal/infrastructure/middleware"
	"telecare/internal/infrastructure/webrtc"
	"telecare/pkg/errors"
	"telecare/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 60 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// Config tunes the control socket. Zero values fall back to defaults.
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// Dependencies are the collaborators of the control socket. Quality, Limiter
// and Publisher are optional.
type Dependencies struct {
	Sessions  ports.SessionDirectory
	Auth      ports.AuthService
	Quality   *webrtc.QualityMonitor
	Limiter   *middleware.LimiterStore
	Publisher ports.SessionEventPublisher
	Logger    *zap.SugaredLogger
}

type connKey struct {
	session     domain.SessionID
	participant domain.ParticipantID
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	timeout time.Duration
}

func (c *client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.timeout))
}

// WebSocketServer is the per-participant session control socket.
type WebSocketServer struct {
	deps     Dependencies
	cfg      Config
	upgrader websocket.Upgrader

	connections map[connKey]*client
	mu          sync.RWMutex

	logger *zap.SugaredLogger
}

func NewWebSocketServer(cfg Config, deps Dependencies) *WebSocketServer {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &WebSocketServer{
		deps:        deps,
		cfg:         cfg,
		connections: make(map[connKey]*client),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// authenticate resolves the caller before the upgrade so failures are
// plain HTTP responses.
func (s *WebSocketServer) authenticate(r *http.Request) (*domain.ParticipantClaims, ports.TelehealthSession, error) {
	q := r.URL.Query()
	sessionID := domain.SessionID(q.Get("session_id"))
	participantID := domain.ParticipantID(q.Get("participant_id"))
	if sessionID == "" || participantID == "" {
		return nil, nil, errors.NewInvalidInputError("session_id and participant_id are required")
	}

	token := q.Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return nil, nil, errors.NewUnauthorizedError("token required")
	}
	claims, err := s.deps.Auth.ValidateToken(token)
	if err != nil {
		return nil, nil, errors.NewUnauthorizedError(err.Error())
	}
	if claims.SessionID != sessionID || claims.ParticipantID != participantID {
		return nil, nil, errors.NewPermissionError(errors.ErrCodeInsufficientPermissions, "token does not match session_id and participant_id")
	}

	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return claims, sess, nil
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, sess, err := s.authenticate(r)
	if err != nil {
		status, body := middleware.NewErrorResponse(err)
		writeJSONError(w, status, body)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	key := connKey{session: claims.SessionID, participant: claims.ParticipantID}
	c := &client{conn: conn, timeout: s.cfg.WriteTimeout}

	s.mu.Lock()
	previous, isReconnect := s.connections[key]
	s.connections[key] = c
	s.mu.Unlock()
	if isReconnect {
		previous.conn.Close()
		s.logger.Infow("Closed previous control connection", "session_id", key.session, "participant_id", key.participant)
	}

	s.logger.Infow("Participant connected to control socket",
		"session_id", key.session,
		"participant_id", key.participant,
		"reconnect", isReconnect,
	)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	messageChan := make(chan Message, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			select {
			case messageChan <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case msg := <-messageChan:
			reply := s.process(ctx, sess, claims, msg)
			if err := c.write(reply); err != nil {
				s.logger.Infow("Error writing reply", "participant_id", key.participant, "error", err)
				break loop
			}

		case <-pingTicker.C:
			if err := c.ping(); err != nil {
				s.logger.Infow("Error sending ping", "participant_id", key.participant, "error", err)
				break loop
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("Error reading message", "participant_id", key.participant, "error", err)
			}
			break loop
		}
	}

	s.mu.Lock()
	if s.connections[key] == c {
		delete(s.connections, key)
	}
	s.mu.Unlock()

	s.logger.Infow("Participant disconnected from control socket",
		"session_id", key.session,
		"participant_id", key.participant,
	)
}

// process runs one command and always produces exactly one reply.
func (s *WebSocketServer) process(ctx context.Context, sess ports.TelehealthSession, claims *domain.ParticipantClaims, msg Message) Result {
	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(claims.SessionID), string(claims.ParticipantID))
	defer span.End()

	if s.deps.Limiter != nil && !s.deps.Limiter.Allow("ws:"+string(claims.SessionID)+":"+string(claims.ParticipantID)) {
		return errorResult(msg.RequestID, errors.NewRateLimitError())
	}

	out, err := s.dispatch(ctx, sess, claims, msg)
	if err != nil {
		tracing.RecordError(ctx, err)
		span.SetAttributes(attribute.Bool("ws.failed", true))
		s.logger.Debugw("Command rejected",
			"type", msg.Type,
			"session_id", claims.SessionID,
			"participant_id", claims.ParticipantID,
			"error", err,
		)
		return errorResult(msg.RequestID, err)
	}

	if ch := changeOf(out); ch != nil && len(ch.Events) > 0 {
		s.broadcast(claims.SessionID, claims.ParticipantID, Notification{
			Type:   NotificationSessionChanged,
			Origin: claims.ParticipantID,
			Change: ch,
		})
	}
	return Result{Type: TypeResult, RequestID: msg.RequestID, OK: true, Change: out}
}

// broadcast sends note to every other connection in the session. Write
// failures are left to the owning read loop to notice.
func (s *WebSocketServer) broadcast(sessionID domain.SessionID, except domain.ParticipantID, note Notification) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.connections))
	for key, c := range s.connections {
		if key.session == sessionID && key.participant != except {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(note); err != nil {
			s.logger.Debugw("Broadcast write failed", "session_id", sessionID, "error", err)
		}
	}
}

// ConnectedParticipants lists participants with an open control socket.
func (s *WebSocketServer) ConnectedParticipants(sessionID domain.SessionID) []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ParticipantID
	for key := range s.connections {
		if key.session == sessionID {
			out = append(out, key.participant)
		}
	}
	return out
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
