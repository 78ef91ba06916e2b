package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type deleteOptions struct {
	All bool
}

func newDeleteCommand(a *app) *cobra.Command {
	opts := &deleteOptions{}

	cmd := &cobra.Command{
		Use:   "delete [account-id]",
		Short: "Stop tracking an account",
		Long:  "Stop tracking an account. A credential is forgotten once it no longer unlocks any tracked account.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd.OutOrStdout(), a, opts, args)
		},
		Example: `knot delete BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv99vp
knot delete --all`,
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Delete every account, credential and institution")

	return cmd
}

func runDelete(ctx context.Context, output io.Writer, a *app, opts *deleteOptions, args []string) error {
	switch {
	case opts.All && len(args) > 0:
		return errors.New("delete: pass either an account ID or --all, not both")
	case opts.All:
		removed := a.store.DeleteAll(ctx)
		_, _ = fmt.Fprintf(output, "Deleted %d account(s)\n", removed)
		return nil
	case len(args) == 0:
		return errors.New("delete: an account ID or --all is required")
	}

	accountID := args[0]
	if err := a.store.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	_, _ = fmt.Fprintf(output, "Deleted account %s\n", accountID)

	return nil
}
