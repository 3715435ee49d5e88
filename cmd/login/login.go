package login

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/api"
	"github.com/stephnangue/vortex/cmd/helpers"
)

const EnvPassword = "VORTEX_PASSWORD"

var (
	LoginCmd = &cobra.Command{
		Use:   "login",
		Short: "Authenticate to a Vortex server and obtain an access token",
		Long: `
Usage: vortex login -u <username> [options]

  Exchanges a username and password for an access token. The token is bound to
  the client agent string of this CLI and stops working if presented by any
  other client. Export it for later commands:

      $ export VORTEX_TOKEN=<token>

  The password is read from -p or from the VORTEX_PASSWORD environment variable.
`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	flagUsername  string
	flagPassword  string
	flagTokenOnly bool
)

func init() {
	LoginCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Username to authenticate as")
	LoginCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "Password (prefer the VORTEX_PASSWORD env var)")
	LoginCmd.Flags().BoolVar(&flagTokenOnly, "token-only", false, "Print only the token")
}

func run(cmd *cobra.Command, args []string) error {
	if flagUsername == "" {
		return errors.New("username is required. Use -u or --username flag")
	}
	password := flagPassword
	if password == "" {
		password = os.Getenv(EnvPassword)
	}
	if password == "" {
		return fmt.Errorf("password is required. Use -p or set %s", EnvPassword)
	}

	c, err := helpers.Client()
	if err != nil {
		return err
	}

	resp, err := c.Auth().Login(cmd.Context(), flagUsername, password)
	if err != nil {
		return fmt.Errorf("Error authenticating: %w", err)
	}

	out := cmd.OutOrStdout()
	if flagTokenOnly {
		fmt.Fprintln(out, resp.Token)
		return nil
	}

	fmt.Fprintf(out, "Success! You are now authenticated. Export the token to use it:\n\n")
	fmt.Fprintf(out, "    export %s=%s\n\n", api.EnvVortexToken, resp.Token)
	helpers.PrintMapAsTable(out, map[string]any{
		"token":         resp.Token,
		"credential_id": resp.CredentialID,
		"expires_at":    resp.ExpiresAt.Format(time.RFC3339),
		"subject":       flagUsername,
	})
	return nil
}
