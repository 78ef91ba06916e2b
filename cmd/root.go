package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/HallyG/knot/internal/api"
	"github.com/HallyG/knot/internal/config"
	"github.com/HallyG/knot/internal/log"
	"github.com/HallyG/knot/internal/notify"
	"github.com/HallyG/knot/internal/plaid"
	"github.com/HallyG/knot/internal/remote"
	"github.com/HallyG/knot/internal/snapshot"
	"github.com/HallyG/knot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	BuildVersion  = `(missing)`
	BuildShortSHA = `(missing)`
)

// app holds the dependencies shared by every subcommand. It is populated before any subcommand runs.
type app struct {
	cfg      *config.Config
	remote   *remote.Client
	store    *store.Store
	notifier *notify.Notifier
	metrics  *prometheus.Registry
}

type rootOptions struct {
	Verbose    bool
	JSONLogs   bool
	ConfigFile string
	DataFile   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:     "knot",
		Short:   "Personal finance account sync",
		Long:    `Link bank and credit accounts through Plaid, refresh their balances and browse their transactions offline-first.`,
		Version: fmt.Sprintf("%s (%s)", BuildVersion, BuildShortSHA),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			handler := log.WithTextHandler()
			if opts.JSONLogs {
				handler = log.WithJSONHandler()
			}

			logger := log.New(
				log.WithWriter(cmd.ErrOrStderr()),
				log.WithVerbose(opts.Verbose),
				handler,
				log.WithAttrs(
					slog.String("build.version", BuildVersion),
					slog.String("build.sha", BuildShortSHA),
				),
			)

			ctx := log.WithContext(cmd.Context(), logger)
			cmd.SetContext(ctx)

			return a.setup(ctx, cmd.Root(), opts)
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "write logs as JSON")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default is $XDG_CONFIG_HOME/knot/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataFile, "data-file", "", "snapshot file (overrides KNOT_DATA_FILE)")

	cmd.AddCommand(
		newLinkCommand(a),
		newAccountsCommand(a),
		newBalancesCommand(a),
		newRefreshCommand(a),
		newTransactionsCommand(a),
		newDeleteCommand(a),
	)

	return cmd
}

func (a *app) setup(ctx context.Context, root *cobra.Command, opts *rootOptions) error {
	loader := config.NewLoader()
	if err := loader.BindFlag(config.KeyDataFile, root.PersistentFlags().Lookup("data-file")); err != nil {
		return err
	}

	cfg, err := loader.Load(opts.ConfigFile)
	if err != nil {
		return err
	}

	logger := log.FromContext(ctx)
	logger.DebugContext(ctx, "loaded config",
		slog.String("config.file", loader.ConfigFileUsed()),
		slog.String("plaid.environment", cfg.PlaidEnvironment),
		slog.String("data.file", cfg.DataFile),
	)

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}

	plaidClient := plaid.New(httpClient, cfg.PlaidClientID, cfg.PlaidSecret,
		api.WithBaseURL(cfg.BaseURL()),
		api.WithTimeout(cfg.Timeout),
	)

	remoteClient, err := remote.New(plaidClient, remote.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	file, err := snapshot.NewFile(cfg.DataFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.remote = remoteClient
	a.notifier = notify.New()
	a.metrics = prometheus.NewRegistry()

	a.store, err = store.New(ctx, remoteClient, file,
		store.WithPublisher(a.notifier),
		store.WithMetrics(store.NewMetrics(a.metrics)),
		store.WithMaxConcurrentFetches(cfg.MaxConcurrentFetches),
	)
	if err != nil {
		return err
	}

	a.notifier.Subscribe(func() {
		summary := a.store.Balances()
		logger.DebugContext(ctx, "state changed",
			slog.Int("account.cash.total", summary.CashCount),
			slog.Int("account.credit.total", summary.CreditCount),
		)
	})

	return nil
}

func Main(ctx context.Context, args []string, output io.Writer, errOutput io.Writer) error {
	rootCmd := newRootCommand()
	rootCmd.SetOut(output)
	rootCmd.SetErr(errOutput)
	rootCmd.SetArgs(args[1:])

	return rootCmd.ExecuteContext(ctx)
}
