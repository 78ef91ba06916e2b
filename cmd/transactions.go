package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/format"
	"github.com/HallyG/knot/internal/log"
	"github.com/HallyG/knot/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const (
	timeFormat  = "2006-01-02"
	day         = 24 * time.Hour
	defaultDays = 30
	formatText  = "text"
)

type transactionsOptions struct {
	Days      int
	StartDate string
	EndDate   string
	AccountID string
	Format    string
}

func (o transactionsOptions) Validate() error {
	formats := append([]any{formatText}, lo.Map(format.All(), func(item format.FormatType, _ int) any {
		return string(item)
	})...)

	return validation.ValidateStruct(&o,
		validation.Field(&o.Days, validation.Required.Error("must be at least 1"), validation.Min(1).Error("must be at least 1")),
		validation.Field(&o.StartDate, validation.Date(timeFormat).Error("must be a date (YYYY-MM-DD)")),
		validation.Field(&o.EndDate, validation.Date(timeFormat).Error("must be a date (YYYY-MM-DD)")),
		validation.Field(&o.Format, validation.In(formats...).Error("unsupported format")),
	)
}

// window resolves the requested date range. An explicit start wins over --days; the end defaults to today.
func (o transactionsOptions) window(now time.Time) (time.Time, time.Time, error) {
	today := now.UTC().Truncate(day)
	end := today

	if o.EndDate != "" {
		parsed, err := time.Parse(timeFormat, o.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
		}

		end = parsed
	}

	start := end.AddDate(0, 0, -o.Days)
	if o.StartDate != "" {
		parsed, err := time.Parse(timeFormat, o.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
		}

		start = parsed
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %q must not be before start date %q", end.Format(timeFormat), start.Format(timeFormat))
	}

	return start, end, nil
}

func newTransactionsCommand(a *app) *cobra.Command {
	opts := &transactionsOptions{}

	allFormats := strings.Join(append([]string{formatText}, lo.Map(format.All(), func(item format.FormatType, _ int) string {
		return string(item)
	})...), ", ")

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List recent transactions across every tracked account",
		Long:  "Fetch transactions for every credential concurrently and list those of tracked accounts, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransactions(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
		Example: `knot transactions --days 7
knot transactions --start 2025-03-01 --end 2025-03-31 --format ynab > march.csv`,
	}

	cmd.Flags().IntVar(&opts.Days, "days", defaultDays, "Number of days to look back from the end date")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "Start date (YYYY-MM-DD), overrides --days")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "End date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&opts.AccountID, "account", "", "Only show transactions for this account ID")
	cmd.Flags().StringVar(&opts.Format, "format", formatText, fmt.Sprintf("Output format (options: %s)", allFormats))

	return cmd
}

func runTransactions(ctx context.Context, output io.Writer, a *app, opts *transactionsOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}

	if opts.AccountID != "" {
		if _, ok := a.store.Lookup(opts.AccountID); !ok {
			return fmt.Errorf("transactions: %w: %s", store.ErrAccountNotFound, opts.AccountID)
		}
	}

	start, end, err := opts.window(time.Now())
	if err != nil {
		return err
	}

	logger := log.FromContext(ctx).With(
		slog.String("start", start.Format(timeFormat)),
		slog.String("end", end.Format(timeFormat)),
	)
	ctx = log.WithContext(ctx, logger)

	result, err := a.store.Transactions(ctx, start, end)
	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}

	transactions := result.Transactions
	if opts.AccountID != "" {
		transactions = lo.Filter(transactions, func(txn domain.Transaction, _ int) bool {
			return txn.AccountID == opts.AccountID
		})
	}

	logger.DebugContext(ctx, "fetched transactions", slog.Int("transaction.total", len(transactions)))

	if opts.Format == formatText || opts.Format == "" {
		err = writeTransactionsTable(output, a.store, transactions)
	} else {
		var formatter format.Formatter
		formatter, err = format.NewFormatter(format.FormatType(opts.Format), output)
		if err != nil {
			return err
		}

		err = format.WriteCollection(formatter, transactions)
	}

	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}

	if len(result.Failures) > 0 {
		errs := lo.Map(result.Failures, func(failure store.CredentialFailure, _ int) error { return failure })
		return fmt.Errorf("transactions incomplete: %w", errors.Join(errs...))
	}

	return nil
}

func writeTransactionsTable(output io.Writer, s *store.Store, transactions []domain.Transaction) error {
	if len(transactions) == 0 {
		_, _ = fmt.Fprintln(output, "No transactions found.")
		return nil
	}

	w := tabwriter.NewWriter(output, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tNAME\tAMOUNT\tACCOUNT\tINSTITUTION")

	for _, txn := range transactions {
		accountName := txn.AccountID
		if account, ok := s.Lookup(txn.AccountID); ok && account.Name != "" {
			accountName = account.Name
		}

		institution, _ := s.Institution(txn.AccountID)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			txn.Date.UTC().Format(timeFormat),
			txn.Name,
			displayAmount(txn.Amount.Neg(), txn.Currency),
			accountName,
			institution.Name,
		)
	}

	return w.Flush()
}
