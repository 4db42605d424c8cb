package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or renewing a lease this holder does not own.
var ErrNotHeld = stderrors.New("lease not held")

const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Lease is an exclusive, expiring claim on a key. A held lease is renewed at
// half its TTL until released or its context ends.
type Lease struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewLease creates an unacquired lease.
func NewLease(client redis.Cmdable, key string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    key,
		value:  generateLeaseValue(),
		ttl:    ttl,
	}
}

func generateLeaseValue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// TryAcquire claims the key without blocking.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.stop = make(chan struct{})
	stop := l.stop
	l.mu.Unlock()

	go l.keepAlive(ctx, stop)
	return true, nil
}

// Release gives up the key if this holder still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lease) renew(ctx context.Context) error {
	result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lease) keepAlive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.renew(ctx); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Key returns the redis key the lease guards.
func (l *Lease) Key() string {
	return l.key
}
