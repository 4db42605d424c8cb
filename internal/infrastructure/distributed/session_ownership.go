package distributed

import (
	"context"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/pkg/distributed"
	"telecare/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionOwnership makes sure only one instance hosts a given session id.
// Sessions are in-memory state machines, so a second host would split the ledger.
type SessionOwnership struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	leases map[domain.SessionID]*distributed.Lease

	logger *zap.SugaredLogger
}

func NewSessionOwnership(client redis.Cmdable, ttl time.Duration, logger *zap.SugaredLogger) *SessionOwnership {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionOwnership{
		client: client,
		prefix: "telecare:session:owner:",
		ttl:    ttl,
		leases: make(map[domain.SessionID]*distributed.Lease),
		logger: logger,
	}
}

// Claim takes ownership of id. The lease is kept alive until Release or ctx ends,
// so ctx should be the process lifetime context, not a request context.
func (o *SessionOwnership) Claim(ctx context.Context, id domain.SessionID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, held := o.leases[id]; held {
		return nil
	}
	lease := distributed.NewLease(o.client, o.prefix+string(id), o.ttl)
	ok, err := lease.TryAcquire(ctx)
	if err != nil {
		return errors.NewTechnicalError(errors.ErrCodeInternal, "failed to claim session", true, err)
	}
	if !ok {
		return errors.NewValidationError(errors.ErrCodeSessionExists, "session is hosted by another instance").
			WithDetail("session_id", id)
	}
	o.leases[id] = lease
	return nil
}

// Release drops ownership of id. Unknown ids are ignored.
func (o *SessionOwnership) Release(ctx context.Context, id domain.SessionID) {
	o.mu.Lock()
	lease, ok := o.leases[id]
	delete(o.leases, id)
	o.mu.Unlock()

	if !ok {
		return
	}
	if err := lease.Release(ctx); err != nil {
		o.logger.Warnw("Failed to release session ownership", "session_id", id, "error", err)
	}
}

// Held returns the ids this instance owns.
func (o *SessionOwnership) Held() []domain.SessionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.SessionID, 0, len(o.leases))
	for id := range o.leases {
		out = append(out, id)
	}
	return out
}
