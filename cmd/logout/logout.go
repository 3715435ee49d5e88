package logout

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/cmd/helpers"
)

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the current access token",
	Long: `
Usage: vortex logout

  Revokes the token in VORTEX_TOKEN on the server. The token is rejected by
  every later request, even before it expires.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := helpers.Client()
		if err != nil {
			return err
		}
		if err := helpers.RequireToken(c); err != nil {
			return err
		}
		if err := c.Auth().Logout(cmd.Context()); err != nil {
			return fmt.Errorf("Error logging out: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Success! The token has been revoked.")
		return nil
	},
}
