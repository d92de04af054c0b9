// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes serve makes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""

	cmd := NewRootCmd()
	buf := new(syncBuffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "check-config", "init-config", "status"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	_, err := execute(t, "--config=/etc/authgate.yaml", "--help")
	require.NoError(t, err)
	assert.Equal(t, "/etc/authgate.yaml", configFile)
	assert.Equal(t, "/etc/authgate.yaml", configPath())
}

func TestConfigPath_DefaultsToXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	configFile = ""

	assert.Equal(t, filepath.Join("/tmp/xdg-config", "authgate", "config.yaml"), configPath())
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}
