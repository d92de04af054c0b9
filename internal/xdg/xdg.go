// Package xdg resolves XDG Base Directory paths for authgate.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "authgate"

// ConfigDir returns the XDG config directory for authgate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for authgate, where the credential
// file lives by default.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func resolve(env, homeRel string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), homeRel)
	}
	return filepath.Join(base, appName)
}
