// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authgate settings from YAML and command-line flags.
//
// Two keys form the reloadable access policy: allowed-offline-players and
// deny-message. The remaining keys are process settings read at startup.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/xdg"
)

// Config keys.
const (
	KeyAllowedOfflinePlayers = "allowed-offline-players"
	KeyDenyMessage           = "deny-message"
	KeyCredentialsFile       = "credentials-file"
	KeyLoginServer           = "login-server"
	KeyGameplayServer        = "gameplay-server"
	KeyPremiumLookup         = "premium-lookup"
	KeyPremiumURL            = "premium-url"
	KeyMetricsAddr           = "metrics-addr"
	KeyConsoleAddr           = "console-addr"
	KeyLogFormat             = "log-format"
	KeyLogLevel              = "log-level"
	KeyWatchConfig           = "watch-config"
)

// CodeInvalid marks a config whose settings fail validation.
const CodeInvalid = "CONFIG_INVALID"

// Defaults.
const (
	DefaultDenyMessage    = "Sorry, this account is not allowed to join in offline mode. Please contact an administrator."
	DefaultLoginServer    = "login"
	DefaultGameplayServer = "survival"
	DefaultMetricsAddr    = "127.0.0.1:9110"
	DefaultConsoleAddr    = "127.0.0.1:4210"
	DefaultLogFormat      = "json"
	DefaultLogLevel       = "info"
	credentialsFileName   = "passwords.txt"
	configFileName        = "config.yaml"
)

// Config is one immutable snapshot of authgate settings.
type Config struct {
	AllowedOfflinePlayers []string `koanf:"allowed-offline-players" yaml:"allowed-offline-players"`
	DenyMessage           string   `koanf:"deny-message" yaml:"deny-message"`

	CredentialsFile string `koanf:"credentials-file" yaml:"credentials-file"`
	LoginServer     string `koanf:"login-server" yaml:"login-server"`
	GameplayServer  string `koanf:"gameplay-server" yaml:"gameplay-server"`
	PremiumLookup   bool   `koanf:"premium-lookup" yaml:"premium-lookup"`
	PremiumURL      string `koanf:"premium-url" yaml:"premium-url"`
	MetricsAddr     string `koanf:"metrics-addr" yaml:"metrics-addr"`
	ConsoleAddr     string `koanf:"console-addr" yaml:"console-addr"`
	LogFormat       string `koanf:"log-format" yaml:"log-format"`
	LogLevel        string `koanf:"log-level" yaml:"log-level"`
	WatchConfig     bool   `koanf:"watch-config" yaml:"watch-config"`

	allowed []glob.Glob
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AllowedOfflinePlayers: []string{},
		DenyMessage:           DefaultDenyMessage,
		CredentialsFile:       filepath.Join(xdg.DataDir(), credentialsFileName),
		LoginServer:           DefaultLoginServer,
		GameplayServer:        DefaultGameplayServer,
		PremiumLookup:         true,
		PremiumURL:            auth.DefaultPremiumLookupURL,
		MetricsAddr:           DefaultMetricsAddr,
		ConsoleAddr:           DefaultConsoleAddr,
		LogFormat:             DefaultLogFormat,
		LogLevel:              DefaultLogLevel,
		WatchConfig:           true,
	}
}

// DefaultPath returns the config file location under the XDG config dir.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), configFileName)
}

// Load builds a Config from defaults, the YAML file at path (skipped when it
// does not exist) and flags (may be nil). Flags set on the command line win
// over the file; unchanged flags only fill keys the file leaves out.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("path", path).Wrap(err)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) compile() error {
	c.allowed = make([]glob.Glob, 0, len(c.AllowedOfflinePlayers))
	for _, pattern := range c.AllowedOfflinePlayers {
		g, err := glob.Compile(pattern)
		if err != nil {
			return oops.Code("CONFIG_INVALID_PATTERN").
				With("pattern", pattern).
				Wrap(err)
		}
		c.allowed = append(c.allowed, g)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.CredentialsFile == "" {
		return oops.Code(CodeInvalid).Errorf("%s is required", KeyCredentialsFile)
	}
	if c.LoginServer == "" {
		return oops.Code(CodeInvalid).Errorf("%s is required", KeyLoginServer)
	}
	if c.GameplayServer == "" {
		return oops.Code(CodeInvalid).Errorf("%s is required", KeyGameplayServer)
	}
	if c.LoginServer == c.GameplayServer {
		return oops.Code(CodeInvalid).
			With("server", c.LoginServer).
			Errorf("%s and %s must differ", KeyLoginServer, KeyGameplayServer)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code(CodeInvalid).Errorf("%s must be 'json' or 'text', got %q", KeyLogFormat, c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code(CodeInvalid).Errorf("%s must be debug, info, warn or error, got %q", KeyLogLevel, c.LogLevel)
	}
	return nil
}

// AllowsOffline reports whether an unverified display name is on the
// allow-list. Entries are glob patterns; plain names match exactly.
func (c *Config) AllowsOffline(username string) bool {
	for _, g := range c.allowed {
		if g.Match(username) {
			return true
		}
	}
	return false
}

// OfflineDenyMessage returns the message shown to unverified players that
// are not on the allow-list.
func (c *Config) OfflineDenyMessage() string {
	return c.DenyMessage
}
