package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		require.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "/some/path", logger)
		require.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database pool not initialized")
	})
}

func TestIgnoreNoChange(t *testing.T) {
	assert.NoError(t, ignoreNoChange(nil))
	assert.NoError(t, ignoreNoChange(migrate.ErrNoChange))

	other := errors.New("dirty database version 2")
	assert.Equal(t, other, ignoreNoChange(other))
}

func TestWrapIf(t *testing.T) {
	assert.NoError(t, wrapIf("ignored", nil))

	base := errors.New("boom")
	err := wrapIf("failed to close source", base)
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "failed to close source: boom", err.Error())
}

func TestMigrationFilesArePaired(t *testing.T) {
	dir := getMigrationsPath(t)

	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing down migration for %s", filepath.Base(up))
	}
}

// TestMigrator_Lifecycle runs against a live database; see setupTestDB.
func TestMigrator_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	logger := zerolog.Nop()

	t.Run("fails with empty migrations path", func(t *testing.T) {
		migrator, err := NewMigrator(db, "", logger)
		require.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path is required")
	})

	t.Run("fails with invalid migrations path", func(t *testing.T) {
		migrator, err := NewMigrator(db, "/nonexistent/path", logger)
		require.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path validation failed")
	})

	t.Run("up is idempotent", func(t *testing.T) {
		migrator, err := NewMigrator(db, getMigrationsPath(t), logger)
		require.NoError(t, err)
		defer migrator.Close()

		require.NoError(t, migrator.Up())
		require.NoError(t, migrator.Up())

		version, dirty, err := migrator.Version()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.GreaterOrEqual(t, version, uint(2))

		assert.NoError(t, migrator.Steps(1))
	})
}

func getMigrationsPath(t *testing.T) string {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	migrationsPath := filepath.Join(cwd, "..", "..", "migrations")
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		t.Skipf("Skipping test: migrations directory not found at %s", migrationsPath)
	}
	return migrationsPath
}
