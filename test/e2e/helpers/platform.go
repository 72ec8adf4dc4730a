//go:build integration

package helpers

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txn2/mcp-element-config/internal/server"
	"github.com/txn2/mcp-element-config/pkg/platform"
)

// TestElement is the element declared by every E2E platform.
const TestElement = "core-router-1"

// TestPlatform is a started platform served over HTTP on a loopback port.
type TestPlatform struct {
	Platform *platform.Platform
	Server   *server.Server
	BaseURL  string
}

// StartPostgres starts a PostgreSQL container and returns its DSN.
func StartPostgres(t *testing.T) string {
	t.Helper()
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
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting postgres connection string: %v", err)
	}
	return dsn
}

// PostgresConfig returns a platform configuration backed by dsn.
func PostgresConfig(t *testing.T, dsn string, historyLimit int) *platform.Config {
	t.Helper()
	cfg, err := platform.ParseConfig([]byte(fmt.Sprintf(`
server:
  name: e2e-element-config
  shutdown_timeout: 5s
database:
  dsn: %q
retention:
  default_history_limit: %d
elements:
  - name: %s
    role: core
audit:
  enabled: true
metrics:
  enabled: true
`, dsn, historyLimit, TestElement)))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}
	return cfg
}

// NewTestPlatform creates and starts a platform and serves it on a loopback
// port until the test ends.
func NewTestPlatform(t *testing.T, cfg *platform.Config) *TestPlatform {
	t.Helper()

	p, err := platform.New(platform.WithConfig(cfg))
	if err != nil {
		t.Fatalf("creating platform: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		cancel()
		t.Fatalf("starting platform: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("listening: %v", err)
	}

	srv := server.New(p)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = p.Stop(context.Background())
	})

	tp := &TestPlatform{
		Platform: p,
		Server:   srv,
		BaseURL:  "http://" + ln.Addr().String(),
	}
	if err := WaitForReady(ctx, tp.BaseURL, WaitConfig{Timeout: 30 * time.Second, Interval: 100 * time.Millisecond}); err != nil {
		t.Fatalf("waiting for server: %v", err)
	}
	return tp
}

// TestContext creates a test context with timeout.
func TestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
