package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
	"github.com/txn2/mcp-element-config/pkg/platform"
)

type purgeOptions struct {
	element string
	series  string
}

func newPurgeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &purgeOptions{}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove revisions beyond the history limit",
		Long: `Remove revisions beyond the configured history limit.

Without --series every series of the element is purged. The ACTIVE revision
of a series is never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts.configPath)
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.element, "element", "e", "", "element id or name (required)")
	cmd.Flags().StringVarP(&opts.series, "series", "s", "", "series name (default: all series)")
	_ = cmd.MarkFlagRequired("element")

	return cmd
}

func runPurge(ctx context.Context, cfg *platform.Config, opts *purgeOptions, out io.Writer) error {
	ref, err := element.ParseRef(opts.element)
	if err != nil {
		return err
	}

	p, err := platform.New(platform.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}
	defer func() { _ = p.Close() }()
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}
	defer func() { _ = p.Stop(context.Background()) }()

	return purgeSeries(ctx, p.Service(), ref, opts.series, out)
}

func purgeSeries(ctx context.Context, svc *configstore.Service, ref element.Ref, series string, out io.Writer) error {
	var names []configstore.SeriesName
	if series != "" {
		name, err := configstore.ParseSeriesName(series)
		if err != nil {
			return err
		}
		names = append(names, name)
	} else {
		latest, err := svc.FindConfigs(ctx, ref, "")
		if err != nil {
			return fmt.Errorf("listing series: %w", err)
		}
		for _, r := range latest {
			names = append(names, r.Series)
		}
	}

	total := 0
	for _, name := range names {
		n, err := svc.PurgeOutdatedConfigs(ctx, ref, name)
		if err != nil {
			return fmt.Errorf("purging %s: %w", name, err)
		}
		total += n
		if _, err := fmt.Fprintf(out, "%s: removed %d\n", name, n); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "total removed: %d\n", total)
	return err
}
