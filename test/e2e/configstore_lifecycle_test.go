//go:build integration

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-element-config/pkg/audit"
	"github.com/txn2/mcp-element-config/pkg/tools"
	"github.com/txn2/mcp-element-config/test/e2e/helpers"
)

const startupConfig = "startup-config"

func newPostgresPlatform(t *testing.T, historyLimit int) *helpers.TestPlatform {
	t.Helper()
	e2eCfg := helpers.DefaultE2EConfig()
	dsn := e2eCfg.PostgresDSN
	if dsn == "" {
		dsn = helpers.StartPostgres(t)
	}
	return helpers.NewTestPlatform(t, helpers.PostgresConfig(t, dsn, historyLimit))
}

func TestConfigLifecycle_Postgres(t *testing.T) {
	tp := newPostgresPlatform(t, 3)
	alice := helpers.NewConfigClient(tp.BaseURL, helpers.TestElement, "alice")

	first, status, err := alice.Store(startupConfig, "CANDIDATE", "hostname core-router-1", "initial")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "alice", first.Revision.Creator)

	again, status, err := alice.Store(startupConfig, "CANDIDATE", "hostname core-router-1", "same content")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, again.Created)
	assert.Equal(t, first.Revision.ID, again.Revision.ID)

	activated, status, err := alice.Activate(first.Revision.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", activated.State)

	_, status, err = alice.Activate(first.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)

	second, status, err := alice.Store(startupConfig, "ACTIVE", "hostname core-router-1\nntp server 10.0.0.1", "")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	history, status, err := alice.History(startupConfig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, history, 2)
	assert.Equal(t, second.Revision.ID, history[0].ID)
	assert.Equal(t, "ACTIVE", history[0].State)
	assert.Equal(t, "SUPERSEDED", history[1].State)

	status, err = alice.Remove(second.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)

	restored, status, err := alice.Restore(first.Revision.ID, "rollback")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "CANDIDATE", restored.Revision.State)
	assert.Equal(t, first.Revision.ContentHash, restored.Revision.ContentHash)

	active, status, err := alice.Active(startupConfig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, second.Revision.ID, active.ID)

	var content string
	require.NoError(t, json.Unmarshal(active.Content, &content))
	assert.True(t, strings.HasPrefix(content, "hostname core-router-1"))

	for _, c := range []string{"a", "b", "c"} {
		_, status, err = alice.Store(startupConfig, "ACTIVE", c, "")
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, status)
	}
	removed, status, err := alice.Purge(startupConfig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Positive(t, removed)

	history, _, err = alice.History(startupConfig)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(history), 3)

	events, err := tp.Platform.AuditLogger().Query(context.Background(), audit.QueryFilter{Series: startupConfig})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestConfigLifecycle_ConcurrentStores(t *testing.T) {
	tp := newPostgresPlatform(t, 50)

	const writers = 8
	var wg sync.WaitGroup
	statuses := make([]int, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := helpers.NewConfigClient(tp.BaseURL, helpers.TestElement, "writer")
			_, status, err := client.Store(startupConfig, "ACTIVE", "hostname r"+string(rune('a'+i)), "")
			assert.NoError(t, err)
			statuses[i] = status
		}(i)
	}
	wg.Wait()

	for _, status := range statuses {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, status)
	}

	history, status, err := helpers.NewConfigClient(tp.BaseURL, helpers.TestElement, "").History(startupConfig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	activeCount := 0
	for _, r := range history {
		if r.State == "ACTIVE" {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestConfigLifecycle_MCP(t *testing.T) {
	tp := newPostgresPlatform(t, 5)
	ctx, cancel := helpers.TestContext(helpers.DefaultE2EConfig().Timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: tp.BaseURL + "/mcp"}, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: tools.ToolStoreConfig,
		Arguments: map[string]any{
			"element": helpers.TestElement,
			"series":  startupConfig,
			"state":   "ACTIVE",
			"content": "hostname core-router-1",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.ToolGetActiveConfig,
		Arguments: map[string]any{"element": helpers.TestElement, "series": startupConfig},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "hostname core-router-1")

	active, status, err := helpers.NewConfigClient(tp.BaseURL, helpers.TestElement, "").Active(startupConfig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "system", active.Creator)
}
