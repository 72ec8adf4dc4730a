package main

import (
	"database/sql"
	"errors"
	"fmt"

	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/txn2/mcp-element-config/pkg/database/migrate"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDatabase(rootOpts.configPath, migrate.Run)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  "Roll back the given number of migrations, or all of them when --steps is 0. Rolling back everything drops every stored configuration.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDatabase(rootOpts.configPath, func(db *sql.DB) error {
				if steps > 0 {
					return migrate.Steps(db, -steps)
				}
				return migrate.Down(db)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back (0 = all)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(rootOpts.configPath, func(db *sql.DB) error {
				version, dirty, err := migrate.Version(db)
				if errors.Is(err, gomigrate.ErrNilVersion) {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return err
				}
				if err != nil {
					return fmt.Errorf("reading schema version: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return err
			})
		},
	})

	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(configPath string, fn func(*sql.DB) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(db)
}
