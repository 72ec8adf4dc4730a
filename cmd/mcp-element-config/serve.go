package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/txn2/mcp-element-config/internal/server"
	"github.com/txn2/mcp-element-config/pkg/platform"
)

type serveOptions struct {
	transport string
	address   string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configuration store over MCP and REST",
		Long: `Serve the configuration store.

With the http transport the REST API is served under /api/v1, MCP under
/mcp, health probes under /healthz and /readyz, and Prometheus metrics
under the configured metrics path. With the stdio transport only MCP is
served, over stdin and stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts.configPath)
			if err != nil {
				return err
			}
			applyServeOverrides(cfg, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "transport override (http|stdio)")
	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "listen address override for the http transport")

	return cmd
}

func applyServeOverrides(cfg *platform.Config, opts *serveOptions) {
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
}

func runServe(ctx context.Context, cfg *platform.Config) (err error) {
	p, err := platform.New(platform.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			slog.Error("closing platform", "error", closeErr)
		}
	}()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if stopErr := p.Stop(stopCtx); stopErr != nil {
			slog.Error("stopping platform", "error", stopErr)
		}
	}()

	srv := mcpserver.New(p)
	switch cfg.Server.Transport {
	case platform.TransportStdio:
		return srv.ServeStdio(ctx)
	case platform.TransportHTTP:
		return srv.ListenAndServe(ctx)
	default:
		return fmt.Errorf("unknown transport: %s", cfg.Server.Transport)
	}
}
