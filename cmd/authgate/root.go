package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "authgate - login gatekeeper for offline-mode game networks",
		Long: `authgate keeps offline-mode players on a login server until they
prove who they are with /login or /register, while premium accounts
pass straight through to the gameplay server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/authgate/config.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckConfigCmd())
	cmd.AddCommand(newInitConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// configPath returns the --config value or the XDG default.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultPath()
}
