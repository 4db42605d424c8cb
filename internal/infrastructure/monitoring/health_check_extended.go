package monitoring

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/core/ports"
	"telecare/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck pings redis.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// AddArchiveCheck lists the compliance archive.
func (h *HealthChecker) AddArchiveCheck(archive ports.ComplianceArchive, interval, timeout time.Duration) {
	h.AddCheck("compliance_archive", func(ctx context.Context) error {
		_, err := archive.List(ctx)
		return err
	}, interval, timeout)
}

// AddBreakerCheck reports unhealthy while the named circuit is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State, interval time.Duration) {
	h.AddCheck(name, func(ctx context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}, interval, time.Second)
}
