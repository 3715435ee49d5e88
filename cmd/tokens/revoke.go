package tokens

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/cmd/helpers"
)

var (
	revokeCmd = &cobra.Command{
		Use:   "revoke <credential id>",
		Short: "Revoke one credential by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runRevoke,
	}

	flagSubject string
)

func init() {
	revokeCmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "Owner of the credential (defaults to yourself)")
}

func runRevoke(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}
	if err := helpers.RequireToken(c); err != nil {
		return err
	}

	subject, err := resolveSubject(cmd.Context(), c, flagSubject)
	if err != nil {
		return fmt.Errorf("Error reading identity: %w", err)
	}

	if err := c.AccessTokens().Revoke(cmd.Context(), subject, args[0]); err != nil {
		return fmt.Errorf("Error revoking token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Success! Revoked credential %s\n", args[0])
	return nil
}
