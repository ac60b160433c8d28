package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	database, err := New(MemoryPath)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, RunMigrations(ctx, database))

	for _, table := range []string{"certificates", "certificate_names", "api_keys", "audit_logs"} {
		var n int
		err := database.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}

	// Running again on an initialized database is a no-op
	require.NoError(t, RunMigrations(ctx, database))

	var versions int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestRunMigrationsRejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	database, err := New(MemoryPath)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, RunMigrations(ctx, database))
	_, err = database.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (99)`)
	require.NoError(t, err)

	assert.Error(t, RunMigrations(ctx, database))
}

func TestHealthy(t *testing.T) {
	database, err := New(MemoryPath)
	require.NoError(t, err)

	assert.NoError(t, database.Healthy(context.Background()))
	require.NoError(t, database.Close())
	assert.Error(t, database.Healthy(context.Background()))
}
