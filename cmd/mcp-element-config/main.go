// Package main provides the entry point for the mcp-element-config server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	mcpserver "github.com/txn2/mcp-element-config/internal/server"
	"github.com/txn2/mcp-element-config/pkg/platform"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mcp-element-config",
		Short:         "Network element configuration store",
		Long:          "Stores, versions and activates network element configurations over MCP and REST.",
		Version:       mcpserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))

	return cmd
}

// newLogger builds the process logger. Logs always go to w so that the
// stdio transport keeps stdout for protocol messages.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

// loadConfig reads the configuration file, or returns the defaults when no
// path is given.
func loadConfig(path string) (*platform.Config, error) {
	if path == "" {
		cfg, err := platform.ParseConfig(nil)
		if err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
