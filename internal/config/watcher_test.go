// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/authgate/internal/config"
)

type countingReloader struct{ n atomic.Int32 }

func (r *countingReloader) Reload() error {
	r.n.Add(1)
	return nil
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := config.NewWatcher("", &countingReloader{}, 0, nil)
	assert.Error(t, err)
	_, err = config.NewWatcher("config.yaml", nil, 0, nil)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "allowed-offline-players: [Steve]\n")
	store, err := config.Open(path, nil, nil)
	require.NoError(t, err)

	w, err := config.NewWatcher(path, store, 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("allowed-offline-players: [Alex]\n"), 0o600))

	assert.Eventually(t, func() bool {
		return store.Policy().AllowsOffline("Alex")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "second stop is a no-op")
}

func TestWatcher_DebouncesBurstAndIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "deny-message: one\n")
	reloader := &countingReloader{}
	w, err := config.NewWatcher(path, reloader, 100*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	for range 5 {
		require.NoError(t, os.WriteFile(path, []byte("deny-message: two\n"), 0o600))
	}

	assert.Eventually(t, func() bool { return reloader.n.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), reloader.n.Load())

	require.NoError(t, w.Stop())
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeConfig(t, "deny-message: one\n")
	w, err := config.NewWatcher(path, &countingReloader{}, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	require.NoError(t, w.Stop())
}
