package keygen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/helper"
)

var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random token signing key",
	Long: `
Usage: vortex keygen

  Prints a fresh base64 encoded 256-bit key suitable for the "secret"
  attribute of the token block, or for VORTEX_TOKEN_SECRET.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := helper.GenerateSigningKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}
