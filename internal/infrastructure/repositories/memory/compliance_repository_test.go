package memory

import (
	"context"
	"testing"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplianceRepository_StoreAndGet(t *testing.T) {
	repo := NewComplianceRepository()
	ctx := context.Background()

	export := &domain.ComplianceExport{
		SessionID: "s2",
		Events: []domain.ComplianceEvent{
			{ID: "e1", Sequence: 1, SessionID: "s2", Type: domain.EventSessionStarted, Data: map[string]interface{}{"k": "v"}},
		},
	}
	require.NoError(t, repo.Store(ctx, export))
	require.NoError(t, repo.Store(ctx, &domain.ComplianceExport{SessionID: "s1"}))

	export.Events[0].Data["k"] = "mutated"

	got, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Events[0].Data["k"])

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"s1", "s2"}, ids)
}

func TestComplianceRepository_GetMissing(t *testing.T) {
	repo := NewComplianceRepository()
	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionNotFound))

	err = repo.Store(context.Background(), &domain.ComplianceExport{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestComplianceRepository_AppendKeepsOrderPerSession(t *testing.T) {
	repo := NewComplianceRepository()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Append(ctx, domain.ComplianceEvent{SessionID: "s1", Sequence: i}))
	}
	require.NoError(t, repo.Append(ctx, domain.ComplianceEvent{SessionID: "s2", Sequence: 1}))

	events, err := repo.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Sequence)
	}

	empty, err := repo.Events(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
