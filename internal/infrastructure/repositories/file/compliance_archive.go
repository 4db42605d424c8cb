// Package file archives compliance exports as versioned JSON documents on disk.
package file

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/archive"
	"telecare/pkg/errors"
)

const exportVersion = "compliance-export/v1"

// ComplianceArchive keeps every export ever stored; Get returns the newest per session.
type ComplianceArchive struct {
	storage  archive.Storage
	archiver *archive.Archiver
	now      func() time.Time
}

var _ ports.ComplianceArchive = (*ComplianceArchive)(nil)

func NewComplianceArchive(dir string, now func() time.Time) (*ComplianceArchive, error) {
	storage, err := archive.NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	return newComplianceArchive(storage, now), nil
}

func newComplianceArchive(storage archive.Storage, now func() time.Time) *ComplianceArchive {
	if now == nil {
		now = time.Now
	}
	return &ComplianceArchive{
		storage:  storage,
		archiver: archive.NewArchiver(storage, exportVersion, now),
		now:      now,
	}
}

func (a *ComplianceArchive) Store(ctx context.Context, export *domain.ComplianceExport) error {
	if export == nil || export.SessionID == "" {
		return errors.NewInvalidInputError("export must carry a session id")
	}
	_, err := a.archiver.Put(ctx, string(export.SessionID), export)
	return err
}

func (a *ComplianceArchive) Get(ctx context.Context, sessionID domain.SessionID) (*domain.ComplianceExport, error) {
	name, err := a.archiver.Latest(ctx, string(sessionID))
	if stderrors.Is(err, archive.ErrNotFound) {
		return nil, errors.NewValidationError(errors.ErrCodeSessionNotFound, "no archived export for session").
			WithDetail("session_id", sessionID)
	}
	if err != nil {
		return nil, err
	}

	var export domain.ComplianceExport
	if _, err := a.archiver.Get(ctx, name, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

// List decodes one envelope per stored key to recover the unsanitized session id.
func (a *ComplianceArchive) List(ctx context.Context) ([]domain.SessionID, error) {
	names, err := a.storage.List(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []domain.SessionID
	for _, name := range names {
		i := strings.LastIndex(name, "--")
		if i < 0 || seen[name[:i]] {
			continue
		}
		seen[name[:i]] = true

		env, err := a.archiver.Get(ctx, name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		ids = append(ids, domain.SessionID(env.Key))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Prune drops exports archived longer than retention ago.
func (a *ComplianceArchive) Prune(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := a.now().Add(-retention)
	total := 0
	for _, id := range ids {
		n, err := a.archiver.Prune(ctx, string(id), cutoff)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
