package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE compliance_level AS ENUM ('low', 'medium', 'high'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS compliance_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		participant_id TEXT,
		compliance_level compliance_level NOT NULL,
		data JSONB,
		occurred_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(session_id, sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_compliance_events_session ON compliance_events (session_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS compliance_exports (
		session_id TEXT PRIMARY KEY,
		document JSONB NOT NULL,
		total_events INTEGER NOT NULL,
		technical_issues INTEGER NOT NULL,
		exported_at TIMESTAMPTZ NOT NULL
	)`,
}

// RunMigration applies the schema. Every statement is idempotent.
func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
