package whoami

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/cmd/helpers"
)

var WhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the subject and roles behind the current token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := helpers.Client()
		if err != nil {
			return err
		}
		if err := helpers.RequireToken(c); err != nil {
			return err
		}
		me, err := c.Auth().Me(cmd.Context())
		if err != nil {
			return fmt.Errorf("Error reading identity: %w", err)
		}
		helpers.PrintMapAsTable(cmd.OutOrStdout(), map[string]any{
			"subject": me.Subject,
			"roles":   strings.Join(me.Roles, ", "),
		})
		return nil
	},
}
