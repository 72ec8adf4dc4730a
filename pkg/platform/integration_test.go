//go:build integration

package platform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txn2/mcp-element-config/pkg/audit"
	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
	"github.com/txn2/mcp-element-config/pkg/platform"
)

// TestPlatform_PostgresEndToEnd wires the platform against a real PostgreSQL
// database and exercises a store, an activation and the audit trail.
func TestPlatform_PostgresEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	defer func() { _ = pgContainer.Terminate(ctx) }()

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	cfg, err := platform.ParseConfig([]byte(`
database:
  dsn: ` + dsn + `
audit:
  enabled: true
elements:
  - name: edge-1
`))
	require.NoError(t, err)

	p, err := platform.New(platform.WithConfig(cfg))
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Stop(ctx) }()

	svc := p.Service()
	ref := element.ByName("edge-1")

	cand, err := svc.StoreConfig(ctx, ref, configstore.StoreRequest{
		Series:  "startup-config",
		State:   configstore.StateCandidate,
		Content: []byte("hostname edge-1"),
		Comment: "initial",
	})
	require.NoError(t, err)
	assert.True(t, cand.Created)

	active, err := svc.ActivateConfig(ctx, ref, cand.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, configstore.StateActive, active.State)

	got, err := svc.GetActiveConfig(ctx, ref, "startup-config")
	require.NoError(t, err)
	assert.Equal(t, "hostname edge-1", string(got.Content))

	events, err := p.AuditLogger().Query(ctx, audit.QueryFilter{Series: "startup-config"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTypeActivated, events[0].Type)
	assert.Equal(t, audit.EventTypeStored, events[1].Type)
}
