package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/HallyG/knot/internal/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type refreshOptions struct {
	MetricsTextfile string
}

func newRefreshCommand(a *app) *cobra.Command {
	opts := &refreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the balances of every tracked account",
		Long: `Fetch every credential's accounts concurrently and update the tracked balances in one step.
Credentials that fail keep their previous balances and are reported; the command then exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
		Example: `# Refresh from cron and expose metrics to the node exporter textfile collector
knot refresh --metrics-textfile /var/lib/node_exporter/knot.prom`,
	}

	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write refresh metrics to this file in the Prometheus text format")

	return cmd
}

func runRefresh(ctx context.Context, output io.Writer, a *app, opts *refreshOptions) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}

	result, err := a.store.RefreshAll(ctx)

	if opts.MetricsTextfile != "" {
		if writeErr := prometheus.WriteToTextfile(opts.MetricsTextfile, a.metrics); writeErr != nil {
			log.FromContext(ctx).WarnContext(ctx, "failed to write metrics textfile",
				slog.String("path", opts.MetricsTextfile),
				slog.Any("error", writeErr),
			)
		}
	}

	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	_, _ = fmt.Fprintf(output, "Updated %d account(s)\n", result.Updated)

	for _, failure := range result.Failures {
		_, _ = fmt.Fprintf(output, "Failed: %s\n", failure.Error())
	}

	for _, violation := range result.Violations {
		_, _ = fmt.Fprintf(output, "Rejected: %s\n", violation.Error())
	}

	if err := result.Err(); err != nil {
		return fmt.Errorf("refresh incomplete: %d credential(s) failed, %d account(s) rejected", len(result.Failures), len(result.Violations))
	}

	return nil
}
