// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authgate/internal/tasks"
	"github.com/holomush/authgate/pkg/errutil"
)

// AccessPolicy is the reloadable part of the configuration that decides
// which offline accounts may join.
type AccessPolicy interface {
	AllowsOffline(username string) bool
	OfflineDenyMessage() string
}

// PolicySource returns the access policy currently in effect. Each call may
// return a different snapshot after a reload.
type PolicySource interface {
	Policy() AccessPolicy
}

// Reloader re-reads configuration from its source.
type Reloader interface {
	Reload() error
}

// AttemptLimiter throttles failed login attempts per identity.
type AttemptLimiter interface {
	CheckBeforeAttempt(id uuid.UUID) AttemptDecision
	RecordAttempt(id uuid.UUID, success bool) AttemptDecision
}

// TaskRunner runs work off the caller's goroutine. Submit must not block.
type TaskRunner interface {
	Submit(name string, task tasks.Task) bool
}

// Servers names the two backend servers the gatekeeper routes between.
type Servers struct {
	Login    string
	Gameplay string
}

// Deps are the collaborators a Gatekeeper needs.
type Deps struct {
	Proxy    Proxy
	Store    CredentialStore
	Limiter  AttemptLimiter
	Sessions *SessionRegistry
	Verifier PremiumVerifier
	Tasks    TaskRunner
	Policy   PolicySource
	Reloader Reloader
	Servers  Servers
}

// AdmissionResult is the outcome of a network-level admission check.
type AdmissionResult struct {
	Allowed bool
	Code    string
	Message string
}

// GatekeeperOption configures a Gatekeeper.
type GatekeeperOption func(*Gatekeeper)

// WithLogger sets the gatekeeper's logger.
func WithLogger(logger *slog.Logger) GatekeeperOption {
	return func(g *Gatekeeper) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the collectors the gatekeeper records into.
func WithMetrics(m *Metrics) GatekeeperOption {
	return func(g *Gatekeeper) {
		g.metrics = m
	}
}

// Gatekeeper decides what connected players may do until they have proven
// who they are, and routes them between the login and gameplay servers.
// All methods are safe for concurrent use.
type Gatekeeper struct {
	proxy    Proxy
	store    CredentialStore
	limiter  AttemptLimiter
	sessions *SessionRegistry
	verifier PremiumVerifier
	tasks    TaskRunner
	policy   PolicySource
	reloader Reloader
	servers  Servers
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// NewGatekeeper creates a Gatekeeper. Verifier and Reloader are optional;
// every other dependency is required.
func NewGatekeeper(deps Deps, opts ...GatekeeperOption) (*Gatekeeper, error) {
	if deps.Proxy == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("proxy is required")
	}
	if deps.Store == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("credential store is required")
	}
	if deps.Limiter == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("rate limiter is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("session registry is required")
	}
	if deps.Tasks == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("task runner is required")
	}
	if deps.Policy == nil {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").Errorf("policy source is required")
	}
	if deps.Servers.Login == "" || deps.Servers.Gameplay == "" {
		return nil, oops.Code("GATEKEEPER_INVALID_CONFIG").
			With("login_server", deps.Servers.Login).
			With("gameplay_server", deps.Servers.Gameplay).
			Errorf("login and gameplay server names are required")
	}

	verifier := deps.Verifier
	if verifier == nil {
		verifier = DisabledVerifier{}
	}

	g := &Gatekeeper{
		proxy:    deps.Proxy,
		store:    deps.Store,
		limiter:  deps.Limiter,
		sessions: deps.Sessions,
		verifier: verifier,
		tasks:    deps.Tasks,
		policy:   deps.Policy,
		reloader: deps.Reloader,
		servers:  deps.Servers,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("authgate/auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Sessions returns the registry the gatekeeper tracks players in.
func (g *Gatekeeper) Sessions() *SessionRegistry {
	return g.sessions
}

// Admit decides whether a connection may join the network at all.
func (g *Gatekeeper) Admit(identity Identity) AdmissionResult {
	logger := g.logger.With("player_id", identity.ID.String(), "username", identity.Username, "kind", identity.Kind())

	if g.proxy.RequiresVerification() {
		if !identity.Verified {
			logger.Info("denied unverified account on verified-only proxy")
			g.metrics.admission(identity.Kind(), ResultDenied)
			return AdmissionResult{Code: CodeNotAllowed, Message: MsgVerificationRequired}
		}
		g.metrics.admission(identity.Kind(), ResultSuccess)
		return AdmissionResult{Allowed: true}
	}

	if identity.Verified {
		logger.Info("admitted premium account")
		g.metrics.admission(identity.Kind(), ResultSuccess)
		return AdmissionResult{Allowed: true}
	}

	policy := g.policy.Policy()
	if policy.AllowsOffline(identity.Username) {
		logger.Info("admitted allow-listed offline account")
		g.metrics.admission(identity.Kind(), ResultSuccess)
		return AdmissionResult{Allowed: true}
	}

	logger.Info("denied offline account not on allow-list")
	g.metrics.admission(identity.Kind(), ResultDenied)
	return AdmissionResult{Code: CodeNotAllowed, Message: policy.OfflineDenyMessage()}
}

// PreConnect is consulted before a player joins a backend server. It returns
// the server the player should go to and whether that differs from target.
func (g *Gatekeeper) PreConnect(identity Identity, target string) (string, bool) {
	login := g.servers.Login
	if !g.proxy.HasServer(login) {
		g.logger.Error("login server not registered with proxy", "server", login)
		return target, false
	}

	if !g.sessions.IsAuthenticated(identity) {
		if target == login {
			return target, false
		}
		g.proxy.SendMessage(identity.ID, MsgLoginRequired)
		g.proxy.SendMessage(identity.ID, MsgLoginHint)
		g.metrics.denial("route")
		g.logger.Debug("rerouted unauthenticated player to login server",
			"player_id", identity.ID.String(), "target", target)
		return login, true
	}

	if target == login {
		g.proxy.SendMessage(identity.ID, MsgMaySwitch)
	}
	return target, false
}

// SessionStart runs once a player's connection is established. Verified
// players go straight to the gameplay server; everyone else is sent to the
// login server and, in the background, checked for a name collision with a
// premium account. The returned id is handed back to Disconnect.
func (g *Gatekeeper) SessionStart(ctx context.Context, identity Identity) ulid.ULID {
	_, span := g.tracer.Start(ctx, "auth.session_start")
	defer span.End()

	sessionID := g.sessions.Track(identity)
	logger := g.logger.With("player_id", identity.ID.String(), "session_id", sessionID.String())

	if identity.Verified {
		g.sessions.MarkAuthenticated(identity.ID)
		g.observeSessions()
		logger.Info("premium player joined", "username", identity.Username)
		g.proxy.SendMessage(identity.ID, fmt.Sprintf(MsgWelcomePremium, identity.Username))
		g.route(identity, g.servers.Gameplay)
		return sessionID
	}

	g.observeSessions()
	logger.Info("offline player joined", "username", identity.Username)
	g.proxy.SendMessage(identity.ID, MsgLoginHint)
	g.proxy.SendMessage(identity.ID, MsgRegisterHint)
	g.route(identity, g.servers.Login)
	g.checkNameCollision(identity, sessionID)
	return sessionID
}

// checkNameCollision asks the verifier, off the caller's goroutine, whether
// the offline player's name belongs to a premium account.
func (g *Gatekeeper) checkNameCollision(identity Identity, sessionID ulid.ULID) {
	submitted := g.tasks.Submit("premium-lookup", func(ctx context.Context) {
		c := g.verifier.Classify(ctx, identity.Username)
		g.metrics.premiumLookup(c)
		if c != Verified {
			g.logger.Debug("premium lookup finished",
				"username", identity.Username, "classification", c.String())
			return
		}
		if !g.sessions.IsCurrent(identity.ID, sessionID) {
			g.logger.Debug("discarding premium lookup for ended session",
				"player_id", identity.ID.String(), "session_id", sessionID.String())
			return
		}
		g.logger.Info("offline player uses a premium name",
			"player_id", identity.ID.String(), "username", identity.Username)
		g.proxy.SendMessage(identity.ID, fmt.Sprintf(MsgNameCollision, identity.Username))
	})
	if !submitted {
		g.logger.Warn("premium lookup skipped", "username", identity.Username)
	}
}

// AllowCommand reports whether an unauthenticated player may run command.
// /login and /register are always let through.
func (g *Gatekeeper) AllowCommand(identity Identity, command string) bool {
	if g.sessions.IsAuthenticated(identity) {
		return true
	}

	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if strings.HasPrefix(name, "login") || strings.HasPrefix(name, "register") {
		return true
	}

	if g.store.IsRegistered(identity.ID) {
		g.proxy.SendMessage(identity.ID, MsgCommandLoginFirst)
	} else {
		g.proxy.SendMessage(identity.ID, MsgCommandRegisterFirst)
	}
	g.metrics.denial("command")
	g.logger.Debug("blocked command from unauthenticated player",
		"player_id", identity.ID.String(), "command", name)
	return false
}

// AllowChat reports whether the player may send a chat message.
func (g *Gatekeeper) AllowChat(identity Identity, _ string) bool {
	if g.sessions.IsAuthenticated(identity) {
		return true
	}
	g.proxy.SendMessage(identity.ID, MsgChatDenied)
	g.metrics.denial("chat")
	return false
}

// Disconnect ends the session SessionStart returned. A disconnect that
// arrives after the player reconnected leaves the newer session in place.
// Failed login attempts are kept so reconnecting does not reset a lockout.
func (g *Gatekeeper) Disconnect(identity Identity, sessionID ulid.ULID) {
	logger := g.logger.With("player_id", identity.ID.String(), "session_id", sessionID.String())
	if !g.sessions.End(identity.ID, sessionID) {
		logger.Debug("ignoring disconnect for replaced session")
		return
	}
	g.observeSessions()
	logger.Debug("player disconnected")
}

// route sends the player to server if the proxy knows it.
func (g *Gatekeeper) route(identity Identity, server string) {
	if !g.proxy.HasServer(server) {
		g.proxy.SendMessage(identity.ID, fmt.Sprintf(MsgServerNotFound, server))
		g.logger.Error("server not registered with proxy",
			"server", server, "player_id", identity.ID.String())
		return
	}
	if err := g.proxy.Connect(identity.ID, server); err != nil {
		errutil.LogError(g.logger, "connect request failed",
			oops.Code("ROUTE_FAILED").With("server", server).With("player_id", identity.ID.String()).Wrap(err))
	}
}

func (g *Gatekeeper) observeSessions() {
	if g.metrics == nil {
		return
	}
	g.metrics.sessions(g.sessions.Count())
}
