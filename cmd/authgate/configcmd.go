// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
)

// newCheckConfigCmd creates the check-config subcommand.
func newCheckConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and print a summary",
		Long: `Load the config file the same way serve does, validate it and
print the resulting access policy and process settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckConfig(cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runCheckConfig(cmd *cobra.Command) error {
	path := configPath()
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	allowed := "(none)"
	if len(cfg.AllowedOfflinePlayers) > 0 {
		allowed = strings.Join(cfg.AllowedOfflinePlayers, ", ")
	}
	premium := "disabled"
	if cfg.PremiumLookup {
		premium = cfg.PremiumURL
	}

	cmd.Printf("config: %s\n", path)
	cmd.Printf("allowed offline players: %s\n", allowed)
	cmd.Printf("deny message: %s\n", cfg.DenyMessage)
	cmd.Printf("credentials file: %s\n", cfg.CredentialsFile)
	cmd.Printf("servers: login=%s gameplay=%s\n", cfg.LoginServer, cfg.GameplayServer)
	cmd.Printf("premium lookup: %s\n", premium)
	cmd.Println("configuration OK")
	return nil
}

// newInitConfigCmd creates the init-config subcommand.
func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath()
			written, err := config.WriteDefault(path, nil)
			if err != nil {
				return fmt.Errorf("failed to write default config: %w", err)
			}
			if written {
				cmd.Printf("wrote default config to %s\n", path)
			} else {
				cmd.Printf("config already exists at %s\n", path)
			}
			return nil
		},
	}
}
