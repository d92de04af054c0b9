// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package telnet is a line-oriented TCP console that stands in for the entry
// proxy during local testing. Each connection plays one player: it announces
// an identity, then sends commands, chat and server switch requests that go
// through the gatekeeper exactly as proxy events would.
package telnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/observability"
)

// writeTimeout bounds how long a slow client can stall a message.
const writeTimeout = 5 * time.Second

// Gatekeeper is the subset of *auth.Gatekeeper the console drives.
type Gatekeeper interface {
	Admit(identity auth.Identity) auth.AdmissionResult
	SessionStart(ctx context.Context, identity auth.Identity) ulid.ULID
	PreConnect(identity auth.Identity, target string) (string, bool)
	AllowCommand(identity auth.Identity, command string) bool
	AllowChat(identity auth.Identity, message string) bool
	Login(ctx context.Context, identity auth.Identity, args []string) error
	Register(ctx context.Context, identity auth.Identity, args []string) error
	Reload(ctx context.Context, source auth.CommandSource) error
	PlayerSource(identity auth.Identity) auth.CommandSource
	Disconnect(identity auth.Identity, sessionID ulid.ULID)
}

// Option configures a Server.
type Option func(*Server)

// WithServers sets the backend server names the console pretends to host.
func WithServers(names ...string) Option {
	return func(s *Server) {
		for _, name := range names {
			s.servers[name] = true
		}
	}
}

// WithVerifiedOnly makes the console reject unverified identities at
// admission, like a proxy in online mode.
func WithVerifiedOnly(v bool) Option {
	return func(s *Server) {
		s.verifiedOnly = v
	}
}

// WithLogger sets the console's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts console connections.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server accepts console connections and implements auth.Proxy for them.
type Server struct {
	addr         string
	servers      map[string]bool
	verifiedOnly bool
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu       sync.RWMutex
	listener net.Listener
	players  map[uuid.UUID]*connection
}

// NewServer creates a console listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		servers: make(map[string]bool),
		logger:  slog.New(slog.DiscardHandler),
		players: make(map[uuid.UUID]*connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listen address, or "" before Run has bound it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until ctx is cancelled, handing each player's
// events to gk.
func (s *Server) Run(ctx context.Context, gk Gatekeeper) error {
	if gk == nil {
		return oops.Errorf("gatekeeper is required")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("CONSOLE_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("console started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}
		if s.metrics != nil {
			s.metrics.ConnectionsTotal.WithLabelValues("console").Inc()
		}
		h := newConnection(conn, s, gk)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.handle(ctx)
		}()
	}
}

// attach binds a player to a connection. Returns false if the player is
// already connected elsewhere.
func (s *Server) attach(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.players[c.identity.ID]; exists {
		return false
	}
	s.players[c.identity.ID] = c
	return true
}

func (s *Server) detach(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.players[c.identity.ID] == c {
		delete(s.players, c.identity.ID)
	}
}

func (s *Server) player(id uuid.UUID) *connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[id]
}

// broadcast sends a line to every connected player.
func (s *Server) broadcast(line string) {
	s.mu.RLock()
	targets := make([]*connection, 0, len(s.players))
	for _, c := range s.players {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.send(line)
	}
}

// SendMessage implements auth.Proxy.
func (s *Server) SendMessage(id uuid.UUID, text string) {
	if c := s.player(id); c != nil {
		c.send(text)
	}
}

// Connect implements auth.Proxy by moving the player's console to server.
func (s *Server) Connect(id uuid.UUID, server string) error {
	c := s.player(id)
	if c == nil {
		return oops.Code("CONSOLE_PLAYER_OFFLINE").With("player_id", id.String()).Errorf("player is not connected")
	}
	if !s.HasServer(server) {
		return oops.Code("CONSOLE_UNKNOWN_SERVER").With("server", server).Errorf("unknown server")
	}
	c.setServer(server)
	c.send(fmt.Sprintf("* connected to %s", server))
	return nil
}

// HasServer implements auth.Proxy.
func (s *Server) HasServer(name string) bool {
	return s.servers[name]
}

// RequiresVerification implements auth.Proxy.
func (s *Server) RequiresVerification() bool {
	return s.verifiedOnly
}

// HasPermission implements auth.Proxy. Players who connect with the "op"
// flag hold every permission.
func (s *Server) HasPermission(id uuid.UUID, _ string) bool {
	c := s.player(id)
	return c != nil && c.operator
}
