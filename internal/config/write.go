// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const defaultHeader = `# authgate configuration.
#
# allowed-offline-players and deny-message are re-read by /authreload and
# whenever this file changes (watch-config). Other keys need a restart.
`

// WriteDefault writes cfg as YAML to path unless the file already exists.
// Returns true when a file was written.
func WriteDefault(path string, cfg *Config) (bool, error) {
	if cfg == nil {
		cfg = Default()
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return false, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	//nolint:gosec // G306: config holds no secrets and is meant to be edited
	if err := os.WriteFile(path, append([]byte(defaultHeader), body...), 0o644); err != nil {
		return false, oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return true, nil
}
