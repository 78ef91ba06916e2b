package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type accountsOptions struct {
	Output string
}

func (o accountsOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Output, validation.In(outputText, outputJSON, outputYAML).Error("must be one of text, json, yaml")),
	)
}

type accountView struct {
	ID          string    `json:"id" yaml:"id"`
	Partition   string    `json:"partition" yaml:"partition"`
	Type        string    `json:"type" yaml:"type"`
	Subtype     string    `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Mask        string    `json:"mask,omitempty" yaml:"mask,omitempty"`
	Balance     string    `json:"balance" yaml:"balance"`
	Currency    string    `json:"currency,omitempty" yaml:"currency,omitempty"`
	Institution string    `json:"institution,omitempty" yaml:"institution,omitempty"`
	DateAdded   time.Time `json:"dateAdded" yaml:"dateAdded"`
}

func newAccountView(s *store.Store, account domain.Account) accountView {
	institution, _ := s.Institution(account.ID)

	return accountView{
		ID:          account.ID,
		Partition:   string(account.Partition()),
		Type:        string(account.Type),
		Subtype:     account.Subtype,
		Name:        account.Name,
		Mask:        account.Mask,
		Balance:     domain.FormatAmount(account.Balance, account.Currency),
		Currency:    account.Currency,
		Institution: institution.Name,
		DateAdded:   account.DateAdded,
	}
}

func newAccountsCommand(a *app) *cobra.Command {
	opts := &accountsOptions{}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List tracked accounts",
		Long:  "List every tracked account from the local snapshot, cash accounts first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			return writeAccounts(cmd.OutOrStdout(), a.store, opts.Output)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", outputText, "Output format (options: text, json, yaml)")

	return cmd
}

func writeAccounts(output io.Writer, s *store.Store, format string) error {
	accounts := s.Accounts()

	switch format {
	case outputJSON:
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")

		return encoder.Encode(lo.Map(accounts, func(account domain.Account, _ int) accountView {
			return newAccountView(s, account)
		}))
	case outputYAML:
		encoder := yaml.NewEncoder(output)
		encoder.SetIndent(2)

		if err := encoder.Encode(lo.Map(accounts, func(account domain.Account, _ int) accountView {
			return newAccountView(s, account)
		})); err != nil {
			return err
		}

		return encoder.Close()
	default:
		if len(accounts) == 0 {
			_, _ = fmt.Fprintln(output, "No accounts tracked. Run `knot link` to add one.")
			return nil
		}

		return writeAccountsTable(output, s, accounts)
	}
}

func writeAccountsTable(output io.Writer, s *store.Store, accounts []domain.Account) error {
	w := tabwriter.NewWriter(output, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPARTITION\tNAME\tMASK\tBALANCE\tINSTITUTION")

	for _, account := range accounts {
		view := newAccountView(s, account)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			view.ID,
			view.Partition,
			view.Name,
			view.Mask,
			strings.TrimSpace(view.Balance+" "+view.Currency),
			view.Institution,
		)
	}

	return w.Flush()
}
