//go:build integration

package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// WaitConfig configures service readiness checks.
type WaitConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultWaitConfig returns default wait configuration.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Timeout:  60 * time.Second,
		Interval: 2 * time.Second,
	}
}

// WaitForPostgres waits for PostgreSQL to be ready.
func WaitForPostgres(ctx context.Context, dsn string, cfg WaitConfig) error {
	deadline := time.Now().Add(cfg.Timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			time.Sleep(cfg.Interval)
			continue
		}

		err = db.PingContext(ctx)
		closeErr := db.Close()
		if err == nil && closeErr == nil {
			return nil
		}

		time.Sleep(cfg.Interval)
	}

	return fmt.Errorf("postgres not ready within %v", cfg.Timeout)
}

// WaitForReady waits for the readiness probe of a running server to return 200.
func WaitForReady(ctx context.Context, baseURL string, cfg WaitConfig) error {
	return waitForHTTP(ctx, baseURL+"/readyz", cfg)
}

// waitForHTTP waits for an HTTP endpoint to return 200.
func waitForHTTP(ctx context.Context, url string, cfg WaitConfig) error {
	deadline := time.Now().Add(cfg.Timeout)
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		time.Sleep(cfg.Interval)
	}

	return fmt.Errorf("service at %s not ready within %v", url, cfg.Timeout)
}
