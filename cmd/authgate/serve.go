// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/logging"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/internal/tasks"
	"github.com/holomush/authgate/internal/telnet"
	"github.com/holomush/authgate/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gatekeeper with its console, metrics and config watcher",
		Long: `Run the gatekeeper. Players connect through the line console; the
access policy is reloaded on SIGHUP, on /authreload and, when enabled,
whenever the config file changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// countingReloader records every reload outcome before passing it on.
type countingReloader struct {
	store   *config.Store
	metrics *observability.Metrics
}

func (r countingReloader) Reload() error {
	err := r.store.Reload()
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.metrics.ConfigReloads.WithLabelValues(result).Inc()
	return err
}

// operatorSource answers /authreload issued from the process itself
// (SIGHUP). It holds every permission and replies into the log.
type operatorSource struct {
	logger *slog.Logger
}

func (s operatorSource) SendMessage(text string) {
	s.logger.Info("operator reply", "message", text)
}

func (operatorSource) HasPermission(string) bool { return true }

// runServe wires every component and blocks until ctx is cancelled, a
// shutdown signal arrives or a long-running part fails.
func runServe(ctx context.Context, cmd *cobra.Command) error {
	path := configPath()
	store, loadErr := config.Open(path, cmd.Flags(), nil)
	if store == nil {
		return fmt.Errorf("invalid configuration: %w", loadErr)
	}
	cfg := store.Current()

	logger := logging.SetDefault("authgate", version, logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Writer: cmd.ErrOrStderr(),
	})
	logger.Info("starting authgate",
		"config", path,
		"console_addr", cfg.ConsoleAddr,
		"login_server", cfg.LoginServer,
		"gameplay_server", cfg.GameplayServer,
	)
	if loadErr != nil {
		errutil.LogError(logger, "config load failed, running with defaults", loadErr)
	}

	var ready atomic.Bool
	obs := observability.NewServer(cfg.MetricsAddr, ready.Load, observability.WithLogger(logger))
	registry := obs.Registry()
	reloader := countingReloader{store: store, metrics: obs.Metrics()}

	sessions := auth.NewSessionRegistry()
	credentials, err := auth.NewFileCredentialStore(cfg.CredentialsFile, auth.NewArgon2idHasher(),
		auth.WithStoreLogger(logger), auth.WithNameResolver(sessions))
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	if err := credentials.Load(); err != nil {
		logger.Warn("continuing without stored credentials", "path", cfg.CredentialsFile)
	}

	limiter := auth.NewRateLimiter(auth.RateLimiterConfig{Registerer: registry})
	defer limiter.Close()

	var verifier auth.PremiumVerifier = auth.DisabledVerifier{}
	if cfg.PremiumLookup {
		httpVerifier, err := auth.NewHTTPPremiumVerifier(cfg.PremiumURL, auth.WithVerifierLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create premium verifier: %w", err)
		}
		verifier = httpVerifier
	}

	pool := tasks.NewPool(tasks.DefaultConcurrency, tasks.WithLogger(logger), tasks.WithRegisterer(registry))

	console := telnet.NewServer(cfg.ConsoleAddr,
		telnet.WithServers(cfg.LoginServer, cfg.GameplayServer),
		telnet.WithLogger(logger),
		telnet.WithMetrics(obs.Metrics()),
	)

	gk, err := auth.NewGatekeeper(auth.Deps{
		Proxy:    console,
		Store:    credentials,
		Limiter:  limiter,
		Sessions: sessions,
		Verifier: verifier,
		Tasks:    pool,
		Policy:   store,
		Reloader: reloader,
		Servers:  auth.Servers{Login: cfg.LoginServer, Gameplay: cfg.GameplayServer},
	}, auth.WithLogger(logger), auth.WithMetrics(auth.NewMetrics(registry)))
	if err != nil {
		return fmt.Errorf("failed to create gatekeeper: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		obsErrCh, err := obs.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		group.Go(func() error {
			select {
			case err, ok := <-obsErrCh:
				if ok && err != nil {
					return fmt.Errorf("observability server error: %w", err)
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}

	var watcher *config.Watcher
	if cfg.WatchConfig {
		watcher = startWatcher(ctx, path, reloader, logger)
	}

	group.Go(func() error {
		return console.Run(gctx, gk)
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("received SIGHUP, reloading access policy")
				if err := gk.Reload(gctx, operatorSource{logger: logger}); err != nil {
					errutil.LogError(logger, "reload on SIGHUP failed", err)
				}
			}
		}
	})

	ready.Store(true)
	cmd.Println("authgate started")

	runErr := group.Wait()
	ready.Store(false)
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := obs.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("error stopping config watcher", "error", err)
		}
	}
	if err := pool.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// startWatcher watches the config file. A watcher that cannot start is
// logged and skipped; SIGHUP and /authreload still work without it.
func startWatcher(ctx context.Context, path string, reloader config.Reloader, logger *slog.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(path, reloader, config.DefaultDebounce, logger)
	if err != nil {
		errutil.LogError(logger, "config watcher disabled", err)
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		errutil.LogError(logger, "config watcher disabled", err)
		return nil
	}
	return watcher
}
