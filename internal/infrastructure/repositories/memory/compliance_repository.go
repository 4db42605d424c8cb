package memory

import (
	"context"
	"sort"
	"sync"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"
)

// ComplianceRepository keeps archived exports and mirrored ledgers in process memory.
type ComplianceRepository struct {
	mu      sync.RWMutex
	exports map[domain.SessionID]*domain.ComplianceExport
	events  map[domain.SessionID][]domain.ComplianceEvent
}

var (
	_ ports.ComplianceArchive     = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventSink   = (*ComplianceRepository)(nil)
	_ ports.ComplianceEventReader = (*ComplianceRepository)(nil)
)

func NewComplianceRepository() *ComplianceRepository {
	return &ComplianceRepository{
		exports: make(map[domain.SessionID]*domain.ComplianceExport),
		events:  make(map[domain.SessionID][]domain.ComplianceEvent),
	}
}

func (r *ComplianceRepository) Store(ctx context.Context, export *domain.ComplianceExport) error {
	if export == nil || export.SessionID == "" {
		return errors.NewInvalidInputError("export must carry a session id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *export
	stored.Events = cloneEvents(export.Events)
	r.exports[export.SessionID] = &stored
	return nil
}

func (r *ComplianceRepository) Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	export, ok := r.exports[sessionID]
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeSessionNotFound, "no archived export for session").
			WithDetail("session_id", sessionID)
	}
	out := *export
	out.Events = cloneEvents(export.Events)
	return &out, nil
}

func (r *ComplianceRepository) List(ctx context.Context) ([]domain.SessionID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.SessionID, 0, len(r.exports))
	for id := range r.exports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Append mirrors one ledger entry. Entries are kept in arrival order.
func (r *ComplianceRepository) Append(ctx context.Context, event domain.ComplianceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.SessionID] = append(r.events[event.SessionID], event.Clone())
	return nil
}

func (r *ComplianceRepository) Events(ctx context.Context, sessionID domain.SessionID) ([]domain.ComplianceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneEvents(r.events[sessionID]), nil
}

func cloneEvents(events []domain.ComplianceEvent) []domain.ComplianceEvent {
	out := make([]domain.ComplianceEvent, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
