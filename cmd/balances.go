package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/store"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newBalancesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show cash, credit and net balances",
		Long:  "Total the balances of the tracked accounts. Net is cash minus credit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeBalances(cmd.OutOrStdout(), a.store)
		},
	}
}

func writeBalances(output io.Writer, s *store.Store) error {
	summary := s.Balances()
	currency := commonCurrency(s.Accounts())

	w := tabwriter.NewWriter(output, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Cash\t%s\t(%d account(s))\n", displayAmount(summary.Cash, currency), summary.CashCount)
	_, _ = fmt.Fprintf(w, "Credit\t%s\t(%d account(s))\n", displayAmount(summary.Credit, currency), summary.CreditCount)
	_, _ = fmt.Fprintf(w, "Net\t%s\t\n", displayAmount(summary.Net, currency))

	return w.Flush()
}

// commonCurrency returns the currency shared by every account, or "" when they differ.
func commonCurrency(accounts []domain.Account) string {
	currencies := lo.Uniq(lo.Map(accounts, func(account domain.Account, _ int) string {
		return account.Currency
	}))

	if len(currencies) != 1 {
		return ""
	}

	return currencies[0]
}

func displayAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.String()
	}

	return domain.NewMoney(amount, currency).Display()
}
