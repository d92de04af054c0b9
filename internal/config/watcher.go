// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// DefaultDebounce is how long the watcher waits for further writes before
// reloading.
const DefaultDebounce = 500 * time.Millisecond

// Reloader re-reads configuration.
type Reloader interface {
	Reload() error
}

// Watcher reloads configuration when the config file changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file through a rename are still noticed.
type Watcher struct {
	path     string
	reloader Reloader
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, reloader Reloader, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, oops.Errorf("config path is required")
	}
	if reloader == nil {
		return nil, oops.Errorf("reloader is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return &Watcher{
		path:     abs,
		reloader: reloader,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Start begins watching. The watch loop stops when ctx is cancelled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.Code("CONFIG_WATCH_FAILED").Wrap(err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close() //nolint:errcheck // already failing
		return oops.Code("CONFIG_WATCH_FAILED").With("path", w.path).Wrap(err)
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(ctx, fw, w.done)

	w.logger.Info("watching config for changes", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case event, ok := <-fw.Events:
			if !ok {
				w.stopTimer()
				return
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Debug("config file changed", "path", w.path, "op", event.Op.String())
		// Reload logs its own failures and keeps the previous config.
		_ = w.reloader.Reload() //nolint:errcheck // logged by the reloader
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	if fw == nil {
		return nil
	}
	err := fw.Close()
	<-done
	if err != nil {
		return oops.Code("CONFIG_WATCH_STOP_FAILED").Wrap(err)
	}
	return nil
}
