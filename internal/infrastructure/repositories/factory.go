package repositories

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/core/ports"
	"telecare/internal/infrastructure/repositories/file"
	"telecare/internal/infrastructure/repositories/memory"
	"telecare/internal/infrastructure/repositories/postgres"
	redisrepo "telecare/internal/infrastructure/repositories/redis"
	"telecare/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the compliance archive and ledger mirror selected by
// configuration. Redis falls back to memory when it cannot be reached.
type RepositoryFactory struct {
	cfg *config.Config

	redisClient *redis.Client
	pgPool      *pgxpool.Pool
	memory      *memory.ComplianceRepository

	logger *zap.SugaredLogger
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &RepositoryFactory{
		cfg:    cfg,
		memory: memory.NewComplianceRepository(),
		logger: logger,
	}

	if f.needs("redis") && cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, falling back to memory repositories", "error", err)
		} else {
			f.redisClient = client
		}
	}

	if f.needs("postgres") {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.MaxConns)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		f.pgPool = pool
	}

	return f, nil
}

func (f *RepositoryFactory) needs(backend string) bool {
	return f.cfg.Compliance.ArchiveBackend == backend || f.cfg.Compliance.MirrorBackend == backend
}

func (f *RepositoryFactory) retention() time.Duration {
	return time.Duration(f.cfg.Compliance.DataRetentionDays) * 24 * time.Hour
}

// RedisClient is non-nil when a redis connection was established.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// CreateComplianceArchive returns the configured archive.
func (f *RepositoryFactory) CreateComplianceArchive() (ports.ComplianceArchive, error) {
	switch f.cfg.Compliance.ArchiveBackend {
	case "redis":
		if f.redisClient != nil {
			f.logger.Info("Using Redis compliance archive")
			return redisrepo.NewComplianceRepository(f.redisClient, f.retention()), nil
		}
	case "postgres":
		f.logger.Info("Using Postgres compliance archive")
		return postgres.NewComplianceRepository(f.pgPool), nil
	case "file":
		f.logger.Infow("Using file compliance archive", "dir", f.cfg.Compliance.ArchiveDir)
		return file.NewComplianceArchive(f.cfg.Compliance.ArchiveDir, nil)
	}
	f.logger.Info("Using memory compliance archive")
	return f.memory, nil
}

// CreateEventSink returns the configured ledger mirror, or nil when mirroring is off.
func (f *RepositoryFactory) CreateEventSink() ports.ComplianceEventSink {
	switch f.cfg.Compliance.MirrorBackend {
	case "redis":
		if f.redisClient != nil {
			return redisrepo.NewComplianceRepository(f.redisClient, f.retention())
		}
		f.logger.Warn("Redis unavailable, mirroring ledger to memory")
		return f.memory
	case "postgres":
		return postgres.NewComplianceRepository(f.pgPool)
	}
	return nil
}

// HealthCheck pings whichever backends are connected.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.pgPool != nil {
		if err := f.pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
