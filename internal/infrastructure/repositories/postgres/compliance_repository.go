package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE raised when a mirrored event is replayed.
const uniqueViolation = "23505"

// ComplianceRepository persists exports and mirrored ledger entries in postgres.
type ComplianceRepository struct {
	pool *pgxpool.Pool
}

var (
	_ ports.ComplianceArchive     = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventSink   = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventReader = (*ComplianceRepository)(nil)
)

func NewComplianceRepository(pool *pgxpool.Pool) *ComplianceRepository {
	return &ComplianceRepository{pool: pool}
}

func (r *ComplianceRepository) Store(ctx context.Context, export *domain.ComplianceExport) error {
	if export == nil || export.SessionID == "" {
		return errors.NewInvalidInputError("export must carry a session id")
	}
	doc, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	const query = `
		INSERT INTO compliance_exports (session_id, document, total_events, technical_issues, exported_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			document = EXCLUDED.document,
			total_events = EXCLUDED.total_events,
			technical_issues = EXCLUDED.technical_issues,
			exported_at = EXCLUDED.exported_at`

	if _, err := r.pool.Exec(ctx, query,
		string(export.SessionID), doc, export.Summary.TotalEvents,
		export.Summary.TechnicalIssues, export.ExportedAt,
	); err != nil {
		return fmt.Errorf("store export: %w", err)
	}
	return nil
}

func (r *ComplianceRepository) Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT document FROM compliance_exports WHERE session_id = $1`, string(sessionID),
	).Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewValidationError(errors.ErrCodeSessionNotFound, "no archived export for session").
			WithDetail("session_id", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}

	var export domain.ComplianceExport
	if err := json.Unmarshal(doc, &export); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &export, nil
}

func (r *ComplianceRepository) List(ctx context.Context) ([]domain.SessionID, error) {
	rows, err := r.pool.Query(ctx, `SELECT session_id FROM compliance_exports ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SessionID, error) {
		var id string
		err := row.Scan(&id)
		return domain.SessionID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan exports: %w", err)
	}
	return ids, nil
}

// Append inserts one ledger entry. Replays of an already mirrored sequence are ignored.
func (r *ComplianceRepository) Append(ctx context.Context, event domain.ComplianceEvent) error {
	var data []byte
	if event.Data != nil {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		data = encoded
	}

	const query = `
		INSERT INTO compliance_events (
			id, session_id, sequence, event_type, participant_id, compliance_level, data, occurred_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		event.ID, string(event.SessionID), event.Sequence, string(event.Type),
		string(event.ParticipantID), string(event.Level), data, event.Timestamp,
	)
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil
	}
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *ComplianceRepository) Events(ctx context.Context, sessionID domain.SessionID) ([]domain.ComplianceEvent, error) {
	const query = `
		SELECT id, session_id, sequence, event_type, COALESCE(participant_id, ''), compliance_level, data, occurred_at
		FROM compliance_events
		WHERE session_id = $1
		ORDER BY sequence`

	rows, err := r.pool.Query(ctx, query, string(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (domain.ComplianceEvent, error) {
	var (
		e                             domain.ComplianceEvent
		sessionID, eventType, pid, lv string
		data                          []byte
	)
	if err := row.Scan(&e.ID, &sessionID, &e.Sequence, &eventType, &pid, &lv, &data, &e.Timestamp); err != nil {
		return e, err
	}
	e.SessionID = domain.SessionID(sessionID)
	e.Type = domain.EventType(eventType)
	e.ParticipantID = domain.ParticipantID(pid)
	e.Level = domain.ComplianceLevel(lv)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return e, err
		}
	}
	return e, nil
}
