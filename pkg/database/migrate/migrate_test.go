//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	// Get connection string
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tableExists := func(t *testing.T, name string) bool {
		t.Helper()
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = $1
			)
		`, name).Scan(&exists)
		require.NoError(t, err)
		return exists
	}

	t.Run("Run applies migrations", func(t *testing.T) {
		err := Run(db)
		require.NoError(t, err)

		for _, table := range []string{"elements", "element_config", "config_events"} {
			require.True(t, tableExists(t, table), "%s table should exist", table)
		}
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("Single ACTIVE index rejects a second ACTIVE revision", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO elements (id, name) VALUES ('6f1c1f3e-3b5e-4d0e-9a55-2f8f0f3c9a10', 'r1')`)
		require.NoError(t, err)

		insert := `INSERT INTO element_config
			(revision_id, element_id, series_name, state, content_type, content_hash, content, modified_seq)
			VALUES ($1, '6f1c1f3e-3b5e-4d0e-9a55-2f8f0f3c9a10', 'startup-config', 'ACTIVE', 'text/plain', 'h', 'x', $2)`
		_, err = db.Exec(insert, "0d7f9f5e-6c0b-4a4c-8c43-3d9f0a4f6b21", 1)
		require.NoError(t, err)
		_, err = db.Exec(insert, "1e8a0a6f-7d1c-4b5d-9d54-4e0a1b5a7c32", 2)
		require.Error(t, err)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		err := Run(db)
		require.NoError(t, err)

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		err := Down(db)
		require.NoError(t, err)

		require.False(t, tableExists(t, "element_config"), "element_config table should not exist after down")
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		err := Steps(db, 1)
		require.NoError(t, err)

		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)
		require.True(t, tableExists(t, "elements"))
		require.False(t, tableExists(t, "element_config"))

		err = Steps(db, 2)
		require.NoError(t, err)

		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})
}
