package tokens

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/api"
)

var TokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List and revoke the access tokens issued to a subject",
	Long: `
Usage: vortex tokens <subcommand> [options]

  Manages the credentials behind your access tokens, for example to sign out a
  lost device. Administrators (role ADMIN) may manage any subject.

      $ vortex tokens list
      $ vortex tokens revoke <credential id>
`,
}

func init() {
	TokensCmd.AddCommand(listCmd)
	TokensCmd.AddCommand(revokeCmd)
}

// resolveSubject returns explicit when set, and the caller's own subject
// otherwise.
func resolveSubject(ctx context.Context, c *api.Client, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	me, err := c.Auth().Me(ctx)
	if err != nil {
		return "", err
	}
	return me.Subject, nil
}
