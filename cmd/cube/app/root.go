package app

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
	addr     string
}

// NewRootCmd builds the cube command tree: one serve command per service
// plus key generation helpers.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cube",
		Short: "Cube authentication services",
		Long: `cube runs the services that log users in with their World Cube Association
account and protect the profile API with the credentials it issues.

  cube auth      login, callback and /me
  cube profile   profile API
  cube gateway   public entry point in front of both
  cube keys      generate signing keys`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "listen address (defaults to PORT)")

	rootCmd.AddCommand(newAuthCmd(opts))
	rootCmd.AddCommand(newProfileCmd(opts))
	rootCmd.AddCommand(newGatewayCmd(opts))
	rootCmd.AddCommand(newKeysCmd())

	return rootCmd
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
