package repositories

import (
	"context"
	"testing"

	"telecare/internal/infrastructure/repositories/file"
	"telecare/internal/infrastructure/repositories/memory"
	"telecare/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRepositoryFactory_MemoryDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	f, err := NewRepositoryFactory(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer f.Close()

	archive, err := f.CreateComplianceArchive()
	require.NoError(t, err)
	assert.IsType(t, &memory.ComplianceRepository{}, archive)
	assert.Nil(t, f.CreateEventSink())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestRepositoryFactory_RedisDisabledFallsBackToMemory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compliance.ArchiveBackend = "redis"
	cfg.Compliance.MirrorBackend = "redis"
	cfg.Redis.Enabled = false

	f, err := NewRepositoryFactory(context.Background(), cfg, nil)
	require.NoError(t, err)

	archive, err := f.CreateComplianceArchive()
	require.NoError(t, err)
	assert.IsType(t, &memory.ComplianceRepository{}, archive)
	assert.Same(t, archive, f.CreateEventSink())
	assert.Nil(t, f.RedisClient())
}

func TestRepositoryFactory_FileArchive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compliance.ArchiveBackend = "file"
	cfg.Compliance.ArchiveDir = t.TempDir()

	f, err := NewRepositoryFactory(context.Background(), cfg, nil)
	require.NoError(t, err)

	archive, err := f.CreateComplianceArchive()
	require.NoError(t, err)
	assert.IsType(t, &file.ComplianceArchive{}, archive)
}
