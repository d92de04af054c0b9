// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Login attempt limits.
const (
	// AttemptWindow is how long a failure counts against a player, measured
	// from the most recent attempt.
	AttemptWindow = 5 * time.Minute

	// MaxAttempts is the number of failures inside the window that locks a
	// player out.
	MaxAttempts = 3

	// DefaultAttemptCleanupInterval is how often expired records are purged.
	DefaultAttemptCleanupInterval = time.Minute
)

// AttemptDecision is the outcome of a rate limit check.
type AttemptDecision struct {
	// Blocked is true when the attempt must be rejected.
	Blocked bool

	// RetryAfter is the time until the window expires. Zero when allowed.
	RetryAfter time.Duration
}

// Allowed returns true if the attempt may proceed.
func (d AttemptDecision) Allowed() bool {
	return !d.Blocked
}

// attemptRecord tracks failed logins for one identity.
type attemptRecord struct {
	failures int
	last     time.Time
}

// RateLimiterConfig configures the login rate limiter.
type RateLimiterConfig struct {
	// CleanupInterval is the interval at which expired records are purged.
	// Defaults to DefaultAttemptCleanupInterval if zero or negative.
	CleanupInterval time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// Registerer, when set, receives a gauge of tracked records.
	Registerer prometheus.Registerer
}

// RateLimiter bounds failed login attempts per identity with a sliding window
// anchored at the most recent attempt. It is safe for concurrent use.
//
// Records survive disconnects so that reconnecting does not reset the count.
// The RateLimiter runs a background goroutine to purge expired records; call
// Close to stop it.
type RateLimiter struct {
	mu      sync.Mutex
	records map[uuid.UUID]*attemptRecord
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	recordGauge prometheus.Gauge
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultAttemptCleanupInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	rl := &RateLimiter{
		records:  make(map[uuid.UUID]*attemptRecord),
		now:      now,
		stopChan: make(chan struct{}),
	}

	if cfg.Registerer != nil {
		rl.recordGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authgate_login_attempt_records",
			Help: "Current number of identities with recent failed login attempts",
		})
		cfg.Registerer.MustRegister(rl.recordGauge)
	}

	rl.wg.Add(1)
	go rl.cleanupLoop(interval)

	return rl
}

// CheckBeforeAttempt decides whether a login attempt may reach the password
// comparison at all. It does not count as an attempt.
func (rl *RateLimiter) CheckBeforeAttempt(id uuid.UUID) AttemptDecision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rec, ok := rl.records[id]
	if !ok {
		return AttemptDecision{}
	}
	if rl.expired(rec, now) {
		delete(rl.records, id)
		rl.updateGauge()
		return AttemptDecision{}
	}
	if rec.failures >= MaxAttempts {
		return AttemptDecision{Blocked: true, RetryAfter: rec.last.Add(AttemptWindow).Sub(now)}
	}
	return AttemptDecision{}
}

// RecordAttempt records the outcome of a password comparison. A success
// clears the identity's record; a failure starts or extends the window and
// reports Blocked once MaxAttempts is reached.
func (rl *RateLimiter) RecordAttempt(id uuid.UUID, success bool) AttemptDecision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if success {
		delete(rl.records, id)
		rl.updateGauge()
		return AttemptDecision{}
	}

	now := rl.now()
	rec, ok := rl.records[id]
	if !ok || rl.expired(rec, now) {
		rl.records[id] = &attemptRecord{failures: 1, last: now}
		rl.updateGauge()
		return AttemptDecision{}
	}

	rec.failures++
	rec.last = now
	if rec.failures >= MaxAttempts {
		return AttemptDecision{Blocked: true, RetryAfter: AttemptWindow}
	}
	return AttemptDecision{}
}

// Failures returns the failure count inside the current window.
func (rl *RateLimiter) Failures(id uuid.UUID) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.records[id]
	if !ok || rl.expired(rec, rl.now()) {
		return 0
	}
	return rec.failures
}

// RecordCount returns the number of tracked identities.
func (rl *RateLimiter) RecordCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.records)
}

// Cleanup removes records whose window has expired. Called automatically by
// the background goroutine.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, rec := range rl.records {
		if rl.expired(rec, now) {
			delete(rl.records, id)
		}
	}
	rl.updateGauge()
}

func (rl *RateLimiter) expired(rec *attemptRecord, now time.Time) bool {
	return now.Sub(rec.last) >= AttemptWindow
}

// updateGauge must be called with mu held.
func (rl *RateLimiter) updateGauge() {
	if rl.recordGauge != nil {
		rl.recordGauge.Set(float64(len(rl.records)))
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and blocks until it has exited.
// Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
	rl.wg.Wait()
}
