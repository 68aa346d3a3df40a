package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.BackupRetention)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.True(t, filepath.IsAbs(cfg.JournalPath))
}

func TestLoad_MultipleProjectDirs(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	t.Setenv("ROKI_PROJECT_DIRS", a+", "+b)

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.ProjectDirs, 2)
	assert.Equal(t, a, cfg.ProjectDirs[0])
	assert.Equal(t, b, cfg.ProjectDirs[1], "surrounding whitespace is trimmed")
}

func TestLoad_ResolvesRelativeDirs(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", "./demo")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.ProjectDirs, 1)
	assert.True(t, filepath.IsAbs(cfg.ProjectDirs[0]))
}

func TestLoad_MissingProjectDirs(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROKI_PROJECT_DIRS")
}

func TestLoad_InvalidRetention(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", t.TempDir())
	t.Setenv("ROKI_BACKUP_RETENTION", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROKI_BACKUP_RETENTION")
}

func TestLoad_InvalidEventBuffer(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", t.TempDir())
	t.Setenv("ROKI_EVENT_BUFFER", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROKI_EVENT_BUFFER")
}

func TestLoad_ExplicitJournalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")

	t.Setenv("ROKI_PROJECT_DIRS", t.TempDir())
	t.Setenv("ROKI_JOURNAL_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.JournalPath)
}

func TestIsProduction(t *testing.T) {
	t.Setenv("ROKI_PROJECT_DIRS", t.TempDir())
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
