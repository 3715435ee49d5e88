package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/api"
	"github.com/stephnangue/vortex/cmd/hashpassword"
	"github.com/stephnangue/vortex/cmd/keygen"
	"github.com/stephnangue/vortex/cmd/login"
	"github.com/stephnangue/vortex/cmd/logout"
	"github.com/stephnangue/vortex/cmd/server"
	"github.com/stephnangue/vortex/cmd/tokens"
	"github.com/stephnangue/vortex/cmd/whoami"
)

var (
	flagAddress string

	vortexCmd = &cobra.Command{
		Use:   "vortex",
		Short: "Vortex issues and validates revocable, context-bound access tokens",
		Long: `Vortex issues signed access tokens backed by a server-side credential record.
Every token is bound to the client agent that requested it and can be revoked
individually before it expires.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagAddress != "" {
				os.Setenv(api.EnvVortexAddress, flagAddress)
			}
		},
	}
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := vortexCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	vortexCmd.PersistentFlags().StringVarP(&flagAddress, "address", "a", "", "Address of the Vortex server (can also use VORTEX_ADDR env var)")

	vortexCmd.AddCommand(server.ServerCmd)
	vortexCmd.AddCommand(login.LoginCmd)
	vortexCmd.AddCommand(logout.LogoutCmd)
	vortexCmd.AddCommand(whoami.WhoamiCmd)
	vortexCmd.AddCommand(tokens.TokensCmd)
	vortexCmd.AddCommand(keygen.KeygenCmd)
	vortexCmd.AddCommand(hashpassword.HashPasswordCmd)
}
