package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const schemaVersionKey = "telecare:schema:version"

// Migration is one step of the key layout history.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate applies every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	current, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	migrations := getMigrations()
	target := migrations[len(migrations)-1].Version
	if current >= target {
		if logger != nil {
			logger.Debugw("Redis schema is up to date", "version", current)
		}
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if logger != nil {
			logger.Infow("Running redis migration", "version", m.Version)
		}
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func getMigrations() []Migration {
	return []Migration{
		{
			// v1: export documents under telecare:compliance:export:<session>,
			// indexed by the telecare:compliance:exports set.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				return nil
			},
		},
		{
			// v2: mirrored ledgers moved from per-event hashes to one list per session.
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, "telecare:compliance:event:*", 100).Iterator()
				for iter.Next(ctx) {
					if err := client.Del(ctx, iter.Val()).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
	}
}
