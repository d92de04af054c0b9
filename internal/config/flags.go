// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags adds a flag for every process setting to fs. Flag names
// match the YAML keys so Load can layer them over the file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyCredentialsFile, d.CredentialsFile, "credentials file path")
	fs.String(KeyLoginServer, d.LoginServer, "name of the login server")
	fs.String(KeyGameplayServer, d.GameplayServer, "name of the gameplay server")
	fs.Bool(KeyPremiumLookup, d.PremiumLookup, "check offline names against the premium account authority")
	fs.String(KeyPremiumURL, d.PremiumURL, "premium account lookup URL")
	fs.String(KeyMetricsAddr, d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String(KeyConsoleAddr, d.ConsoleAddr, "console listen address")
	fs.String(KeyLogFormat, d.LogFormat, "log format (json or text)")
	fs.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn or error)")
	fs.Bool(KeyWatchConfig, d.WatchConfig, "reload the access policy when the config file changes")
}
