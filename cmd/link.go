package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/store"
	"github.com/spf13/cobra"
)

type linkOptions struct {
	PublicToken       string
	InstitutionID     string
	InstitutionName   string
	InstitutionColour string
}

func newLinkCommand(a *app) *cobra.Command {
	opts := &linkOptions{}

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Track the accounts unlocked by a Plaid Link public token",
		Long:  "Exchange a public token from a completed Plaid Link flow for an access token and track its depository and credit accounts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLink(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
		Example: `knot link --public-token public-sandbox-1234 --institution-name "Chase" --institution-colour "#117ACA"`,
	}

	cmd.Flags().StringVar(&opts.PublicToken, "public-token", "", "Public token returned by Plaid Link")
	cmd.Flags().StringVar(&opts.InstitutionName, "institution-name", "", "Institution name")
	cmd.Flags().StringVar(&opts.InstitutionID, "institution-id", "", "Plaid institution ID")
	cmd.Flags().StringVar(&opts.InstitutionColour, "institution-colour", "", "Institution colour (#RRGGBB)")

	_ = cmd.MarkFlagRequired("public-token")
	_ = cmd.MarkFlagRequired("institution-name")

	return cmd
}

func runLink(ctx context.Context, output io.Writer, a *app, opts *linkOptions) error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}

	institution := domain.Institution{
		ID:            opts.InstitutionID,
		Name:          opts.InstitutionName,
		PrimaryColour: opts.InstitutionColour,
	}

	if err := institution.Validate(); err != nil {
		return fmt.Errorf("invalid institution: %w", err)
	}

	token, err := a.remote.ExchangeLinkToken(ctx, opts.PublicToken)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	added, err := a.store.AddAccounts(ctx, token, institution)
	if err != nil {
		if errors.Is(err, store.ErrNoAccountsAdded) {
			return fmt.Errorf("link: %s returned no new depository or credit accounts", institution.Name)
		}

		return fmt.Errorf("link: %w", err)
	}

	_, _ = fmt.Fprintf(output, "Added %d account(s) from %s\n", len(added), institution.Name)

	return writeAccountsTable(output, a.store, added)
}
