package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// ComplianceRepository stores exports as JSON documents and mirrors ledgers as lists.
type ComplianceRepository struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

var (
	_ ports.ComplianceArchive     = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventSink   = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventReader = (*ComplianceRepository)(nil)
)

// NewComplianceRepository creates the repository. A zero retention keeps keys forever.
func NewComplianceRepository(client redis.Cmdable, retention time.Duration) *ComplianceRepository {
	return &ComplianceRepository{
		client:    client,
		prefix:    "telecare:compliance:",
		retention: retention,
	}
}

func (r *ComplianceRepository) exportKey(id domain.SessionID) string {
	return r.prefix + "export:" + string(id)
}

func (r *ComplianceRepository) exportsIndexKey() string {
	return r.prefix + "exports"
}

func (r *ComplianceRepository) ledgerKey(id domain.SessionID) string {
	return r.prefix + "ledger:" + string(id)
}

func (r *ComplianceRepository) Store(ctx context.Context, export *domain.ComplianceExport) error {
	if export == nil || export.SessionID == "" {
		return errors.NewInvalidInputError("export must carry a session id")
	}
	data, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.exportKey(export.SessionID), data, r.retention)
	pipe.SAdd(ctx, r.exportsIndexKey(), string(export.SessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store export in Redis: %w", err)
	}
	return nil
}

func (r *ComplianceRepository) Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error) {
	data, err := r.client.Get(ctx, r.exportKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewValidationError(errors.ErrCodeSessionNotFound, "no archived export for session").
			WithDetail("session_id", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export from Redis: %w", err)
	}

	var export domain.ComplianceExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export: %w", err)
	}
	return &export, nil
}

// List returns indexed session ids. Ids whose document has expired are dropped from the index.
func (r *ComplianceRepository) List(ctx context.Context) ([]domain.SessionID, error) {
	members, err := r.client.SMembers(ctx, r.exportsIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	ids := make([]domain.SessionID, 0, len(members))
	for _, m := range members {
		id := domain.SessionID(m)
		exists, err := r.client.Exists(ctx, r.exportKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check export: %w", err)
		}
		if exists == 0 {
			r.client.SRem(ctx, r.exportsIndexKey(), m)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *ComplianceRepository) Append(ctx context.Context, event domain.ComplianceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := r.ledgerKey(event.SessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.retention > 0 {
		pipe.Expire(ctx, key, r.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event to Redis: %w", err)
	}
	return nil
}

func (r *ComplianceRepository) Events(ctx context.Context, sessionID domain.SessionID) ([]domain.ComplianceEvent, error) {
	raw, err := r.client.LRange(ctx, r.ledgerKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return decodeEvents(raw)
}

func decodeEvents(raw []string) ([]domain.ComplianceEvent, error) {
	events := make([]domain.ComplianceEvent, 0, len(raw))
	for _, item := range raw {
		var e domain.ComplianceEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })
	return events, nil
}
