package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"

	"go.uber.org/zap"
)

// SessionRegistry hosts independent sessions by id. Its lock guards only the
// map and is never held while a session operation runs.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*TelehealthSessionService
	deps     Dependencies
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

var _ ports.SessionDirectory = (*SessionRegistry)(nil)

// NewSessionRegistry creates a registry whose sessions share deps.
func NewSessionRegistry(deps Dependencies) *SessionRegistry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	idleTTL := deps.IdleTTL
	if idleTTL <= 0 {
		idleTTL = domain.DefaultIdleSessionTTL
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		sessions: make(map[domain.SessionID]*TelehealthSessionService),
		deps:     deps,
		idleTTL:  idleTTL,
		now:      now,
		logger:   logger,
	}
}

func (r *SessionRegistry) Create(ctx context.Context, cfg domain.SessionConfiguration) (ports.TelehealthSession, error) {
	svc, err := NewTelehealthSessionService(cfg, r.deps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create session", false)
	}

	r.mu.Lock()
	if _, exists := r.sessions[cfg.SessionID]; exists {
		r.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeSessionExists, "session already exists").
			WithDetail("session_id", cfg.SessionID)
	}
	r.sessions[cfg.SessionID] = svc
	r.mu.Unlock()

	r.logger.Infow("Session created",
		"session_id", cfg.SessionID,
		"max_participants", cfg.MaxParticipants,
		"recording_enabled", cfg.RecordingEnabled,
	)
	return svc, nil
}

func (r *SessionRegistry) Get(id domain.SessionID) (ports.TelehealthSession, error) {
	r.mu.RLock()
	svc, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return svc, nil
}

func notFound(id domain.SessionID) error {
	return errors.NewValidationError(errors.ErrCodeSessionNotFound, "session not found").
		WithDetail("session_id", id)
}

func (r *SessionRegistry) snapshot() []*TelehealthSessionService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TelehealthSessionService, 0, len(r.sessions))
	for _, svc := range r.sessions {
		out = append(out, svc)
	}
	return out
}

// List returns session snapshots ordered by id.
func (r *SessionRegistry) List() []domain.Session {
	services := r.snapshot()
	out := make([]domain.Session, 0, len(services))
	for _, svc := range services {
		out = append(out, svc.sessions.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops a session that holds no media: one that ended or never started.
func (r *SessionRegistry) Remove(id domain.SessionID) error {
	r.mu.RLock()
	svc, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return notFound(id)
	}
	if err := svc.retire(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.sessions[id] == svc {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	return nil
}

// PruneEnded drops every ended session, and every session still waiting after
// the idle TTL, and returns how many were removed.
func (r *SessionRegistry) PruneEnded() int {
	cutoff := r.now().Add(-r.idleTTL)
	var stale []*TelehealthSessionService
	ended, idle := 0, 0
	for _, svc := range r.snapshot() {
		status, ok := svc.retireIfStale(cutoff)
		if !ok {
			continue
		}
		stale = append(stale, svc)
		if status == domain.SessionEnded {
			ended++
		} else {
			idle++
		}
	}
	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	for _, svc := range stale {
		if r.sessions[svc.id] == svc {
			delete(r.sessions, svc.id)
		}
	}
	r.mu.Unlock()

	r.logger.Infow("Pruned sessions", "ended", ended, "idle", idle)
	return len(stale)
}
