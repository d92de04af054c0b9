// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

// Store holds the current Config snapshot. Readers never see a partially
// applied reload: Reload builds a complete Config and swaps the pointer.
type Store struct {
	path    string
	flags   *pflag.FlagSet
	current atomic.Pointer[Config]
	logger  *slog.Logger

	// reloadMu serializes reloads so two concurrent reloads cannot publish
	// out of order.
	reloadMu sync.Mutex
}

// NewStore creates a Store seeded with an already loaded Config. A nil
// logger means slog.Default at the time of each log call.
func NewStore(path string, flags *pflag.FlagSet, initial *Config, logger *slog.Logger) *Store {
	if initial == nil {
		initial = Default()
		_ = initial.compile() //nolint:errcheck // defaults carry no patterns
	}
	s := &Store{path: path, flags: flags, logger: logger}
	s.current.Store(initial)
	return s
}

// Open loads the config at path and wraps it in a Store.
//
// When the file cannot be read or parsed, or carries a bad allow-list
// pattern, the Store starts from defaults plus flags and the load error is
// returned alongside it. Invalid process settings (CONFIG_INVALID) leave
// nothing safe to start from: the Store is nil in that case.
func Open(path string, flags *pflag.FlagSet, logger *slog.Logger) (*Store, error) {
	cfg, err := Load(path, flags)
	if err == nil {
		return NewStore(path, flags, cfg, logger), nil
	}
	if errutil.Code(err) == CodeInvalid {
		return nil, err
	}

	fallback, fallbackErr := Load("", flags)
	if fallbackErr != nil {
		return nil, fallbackErr
	}
	return NewStore(path, flags, fallback, logger), err
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Current returns the active snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Policy returns the active snapshot as the gatekeeper's access policy.
func (s *Store) Policy() auth.AccessPolicy {
	return s.current.Load()
}

// Reload re-reads the config file. On failure the previous snapshot stays
// active and the error is returned.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := Load(s.path, s.flags)
	if err != nil {
		errutil.LogError(s.log(), "config reload failed, keeping previous config", err)
		return err
	}

	prev := s.current.Swap(cfg)
	if prev != nil && restartRequired(prev, cfg) {
		s.log().Warn("process settings changed; restart to apply them", "path", s.path)
	}
	s.log().Info("config reloaded",
		"path", s.path,
		"allowed_offline_players", len(cfg.AllowedOfflinePlayers),
	)
	return nil
}

// restartRequired reports whether settings outside the access policy
// changed between snapshots.
func restartRequired(prev, next *Config) bool {
	return prev.CredentialsFile != next.CredentialsFile ||
		prev.LoginServer != next.LoginServer ||
		prev.GameplayServer != next.GameplayServer ||
		prev.PremiumLookup != next.PremiumLookup ||
		prev.PremiumURL != next.PremiumURL ||
		prev.MetricsAddr != next.MetricsAddr ||
		prev.ConsoleAddr != next.ConsoleAddr ||
		prev.LogFormat != next.LogFormat ||
		prev.LogLevel != next.LogLevel ||
		prev.WatchConfig != next.WatchConfig
}
