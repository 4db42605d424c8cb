package ports

import (
	"context"

	"telecare/internal/core/domain"
)

// ComplianceArchive stores the export produced when a session ends.
type ComplianceArchive interface {
	Store(ctx context.Context, export *domain.ComplianceExport) error
	Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error)
	List(ctx context.Context) ([]domain.SessionID, error)
}

// ComplianceEventSink mirrors ledger entries to durable storage as they are appended.
type ComplianceEventSink interface {
	Append(ctx context.Context, event domain.ComplianceEvent) error
}

// ComplianceEventReader reads a mirrored ledger back.
type ComplianceEventReader interface {
	Events(ctx context.Context, sessionID domain.SessionID) ([]domain.ComplianceEvent, error)
}
