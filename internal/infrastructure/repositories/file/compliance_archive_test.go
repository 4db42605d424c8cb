package file

import (
	"context"
	"testing"
	"time"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplianceArchive_StoreGetList(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a, err := NewComplianceArchive(t.TempDir(), clock)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, &domain.ComplianceExport{SessionID: "visit/42", Summary: domain.ComplianceSummary{TotalEvents: 1}}))
	now = now.Add(time.Minute)
	require.NoError(t, a.Store(ctx, &domain.ComplianceExport{SessionID: "visit/42", Summary: domain.ComplianceSummary{TotalEvents: 2}}))
	require.NoError(t, a.Store(ctx, &domain.ComplianceExport{SessionID: "a-1"}))

	got, err := a.Get(ctx, "visit/42")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Summary.TotalEvents)

	ids, err := a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"a-1", "visit/42"}, ids)
}

func TestComplianceArchive_GetMissing(t *testing.T) {
	a, err := NewComplianceArchive(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = a.Get(context.Background(), "nope")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionNotFound))
}

func TestComplianceArchive_Prune(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	a, err := NewComplianceArchive(t.TempDir(), func() time.Time { return now })
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, &domain.ComplianceExport{SessionID: "old"}))
	now = now.Add(48 * time.Hour)
	require.NoError(t, a.Store(ctx, &domain.ComplianceExport{SessionID: "new"}))

	removed, err := a.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"new"}, ids)
}
