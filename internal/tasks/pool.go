// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tasks runs fire-and-forget background work off the connection
// handling path.
package tasks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of tasks allowed to run at once.
const DefaultConcurrency = 8

// Task is a unit of background work. The context is cancelled when the pool
// closes.
type Task func(ctx context.Context)

// Result labels for the submitted-task counter.
const (
	ResultAccepted = "accepted"
	ResultDropped  = "dropped"
	ResultClosed   = "closed"
)

// Pool runs tasks on a bounded set of goroutines. Submit never blocks: a task
// submitted while every slot is busy is dropped and reported.
type Pool struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	submitted *prometheus.CounterVec
}

// Option configures a Pool during construction.
type Option func(*Pool)

// WithLogger sets the logger used for dropped and panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegisterer registers the pool's task counter.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) {
		if reg != nil {
			reg.MustRegister(p.submitted)
		}
	}
}

// NewPool creates a pool that runs at most concurrency tasks at a time.
func NewPool(concurrency int, opts ...Option) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	group := &errgroup.Group{}
	group.SetLimit(concurrency)

	p := &Pool{
		group:  group,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.New(slog.DiscardHandler),
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_background_tasks_total",
				Help: "Total number of background tasks submitted by name and result",
			},
			[]string{"task", "result"},
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit schedules task without waiting for it. Returns false when the pool
// is saturated or closed.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.submitted.WithLabelValues(name, ResultClosed).Inc()
		return false
	}

	id := ulid.Make()
	ok := p.group.TryGo(func() error {
		p.run(id, name, task)
		return nil
	})
	if !ok {
		p.submitted.WithLabelValues(name, ResultDropped).Inc()
		p.logger.Warn("background task dropped, pool saturated", "task", name)
		return false
	}
	p.submitted.WithLabelValues(name, ResultAccepted).Inc()
	return true
}

func (p *Pool) run(id ulid.ULID, name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			err := oops.Code("TASK_PANIC").
				With("task", name).
				With("task_id", id.String()).
				Errorf("background task panicked: %v", r)
			p.logger.Error("background task panicked", "task", name, "task_id", id.String(), "error", err)
		}
	}()
	task(p.ctx)
}

// Close stops accepting tasks, cancels the task context and waits for
// running tasks to return or for ctx to expire.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait() //nolint:errcheck // tasks never return errors
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("TASK_POOL_CLOSE_TIMEOUT").Wrap(ctx.Err())
	}
}
