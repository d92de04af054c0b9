// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/tasks"
)

// fakeProxy records everything the gatekeeper asks of the proxy.
type fakeProxy struct {
	mu           sync.Mutex
	messages     map[uuid.UUID][]string
	connects     map[uuid.UUID][]string
	servers      map[string]bool
	permissions  map[uuid.UUID]map[string]bool
	verifiedOnly bool
	connectErr   error
}

func newFakeProxy(servers ...string) *fakeProxy {
	p := &fakeProxy{
		messages:    make(map[uuid.UUID][]string),
		connects:    make(map[uuid.UUID][]string),
		servers:     make(map[string]bool),
		permissions: make(map[uuid.UUID]map[string]bool),
	}
	for _, s := range servers {
		p.servers[s] = true
	}
	return p
}

func (p *fakeProxy) SendMessage(id uuid.UUID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[id] = append(p.messages[id], text)
}

func (p *fakeProxy) Connect(id uuid.UUID, server string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects[id] = append(p.connects[id], server)
	return p.connectErr
}

func (p *fakeProxy) HasServer(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.servers[name]
}

func (p *fakeProxy) RequiresVerification() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifiedOnly
}

func (p *fakeProxy) HasPermission(id uuid.UUID, permission string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions[id][permission]
}

func (p *fakeProxy) grant(id uuid.UUID, permission string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permissions[id] == nil {
		p.permissions[id] = make(map[string]bool)
	}
	p.permissions[id][permission] = true
}

func (p *fakeProxy) Messages(id uuid.UUID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages[id]...)
}

func (p *fakeProxy) Connects(id uuid.UUID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.connects[id]...)
}

func (p *fakeProxy) reset(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.messages, id)
	delete(p.connects, id)
}

// staticPolicy is an allow-list by exact name.
type staticPolicy struct {
	allowed map[string]bool
	deny    string
}

func (s staticPolicy) AllowsOffline(username string) bool { return s.allowed[username] }
func (s staticPolicy) OfflineDenyMessage() string         { return s.deny }
func (s staticPolicy) Policy() auth.AccessPolicy          { return s }

// inlineTasks runs submitted work on the caller's goroutine.
type inlineTasks struct{ submitted int }

func (r *inlineTasks) Submit(_ string, task tasks.Task) bool {
	r.submitted++
	task(context.Background())
	return true
}

// deferredTasks holds submitted work until run is called.
type deferredTasks struct {
	mu      sync.Mutex
	pending []tasks.Task
}

func (r *deferredTasks) Submit(_ string, task tasks.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, task)
	return true
}

func (r *deferredTasks) run() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, task := range pending {
		task(context.Background())
	}
}

type verifierFunc func(ctx context.Context, username string) auth.Classification

func (f verifierFunc) Classify(ctx context.Context, username string) auth.Classification {
	return f(ctx, username)
}

type reloaderFunc func() error

func (f reloaderFunc) Reload() error { return f() }

// consoleSource is an operator console: every permission, replies captured.
type consoleSource struct{ replies []string }

func (c *consoleSource) SendMessage(text string)   { c.replies = append(c.replies, text) }
func (c *consoleSource) HasPermission(string) bool { return true }
