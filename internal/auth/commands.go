// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authgate/pkg/errutil"
)

// PermissionReload is the permission node a player needs for /authreload.
const PermissionReload = "authgate.reload"

// Error codes returned by the command handlers in addition to the policy
// denial codes.
const (
	CodeUsage            = "AUTH_USAGE"
	CodePermissionDenied = "AUTH_PERMISSION_DENIED"
	CodeReloadFailed     = "AUTH_RELOAD_FAILED"
)

// CommandSource is whoever issued an administrative command: a player or
// the operator console.
type CommandSource interface {
	SendMessage(text string)
	HasPermission(permission string) bool
}

type playerSource struct {
	proxy Proxy
	id    uuid.UUID
}

func (s playerSource) SendMessage(text string) { s.proxy.SendMessage(s.id, text) }

func (s playerSource) HasPermission(permission string) bool {
	return s.proxy.HasPermission(s.id, permission)
}

// PlayerSource returns a CommandSource that replies to a connected player
// and checks their permissions through the proxy.
func (g *Gatekeeper) PlayerSource(identity Identity) CommandSource {
	return playerSource{proxy: g.proxy, id: identity.ID}
}

// Login handles /login <password>. Every outcome is reported to the player;
// the returned error carries the denial code, or nil on success and on the
// already-logged-in notice.
func (g *Gatekeeper) Login(ctx context.Context, identity Identity, args []string) error {
	_, span := g.tracer.Start(ctx, "auth.login",
		trace.WithAttributes(attribute.String("player.kind", identity.Kind())))
	defer span.End()

	id := identity.ID
	if len(args) != 1 {
		g.proxy.SendMessage(id, MsgLoginUsage)
		return oops.Code(CodeUsage).With("args", len(args)).Errorf("login takes exactly one argument")
	}

	if g.sessions.IsAuthenticated(identity) {
		g.proxy.SendMessage(id, MsgAlreadyLoggedIn)
		return nil
	}

	if decision := g.limiter.CheckBeforeAttempt(id); decision.Blocked {
		g.proxy.SendMessage(id, fmt.Sprintf(MsgRateLimited, formatWait(decision.RetryAfter)))
		g.metrics.login(ResultRateLimited)
		g.logger.Info("login blocked by rate limit",
			"player_id", id.String(), "retry_after", decision.RetryAfter)
		return ErrRateLimited(id, decision.RetryAfter)
	}

	if !g.store.IsRegistered(id) {
		g.proxy.SendMessage(id, MsgNotRegistered)
		g.metrics.login(ResultUnknown)
		return ErrNotRegistered(id)
	}

	if !g.store.Verify(id, args[0]) {
		decision := g.limiter.RecordAttempt(id, false)
		g.proxy.SendMessage(id, MsgWrongPassword)
		if decision.Blocked {
			g.proxy.SendMessage(id, fmt.Sprintf(MsgLockedOutAfterFail, formatWait(decision.RetryAfter)))
		}
		g.metrics.login(ResultInvalid)
		g.logger.Info("login failed: wrong password",
			"player_id", id.String(), "locked_out", decision.Blocked)
		span.SetStatus(codes.Error, "invalid credentials")
		return ErrInvalidCredentials(id)
	}

	g.limiter.RecordAttempt(id, true)
	g.sessions.MarkAuthenticated(id)
	g.observeSessions()
	g.metrics.login(ResultSuccess)
	g.logger.Info("player logged in", "player_id", id.String(), "username", identity.Username)

	g.proxy.SendMessage(id, MsgLoginSuccess)
	g.proxy.SendMessage(id, fmt.Sprintf(MsgSendingTo, g.servers.Gameplay))
	g.route(identity, g.servers.Gameplay)
	return nil
}

// Register handles /register <password>. A successful registration also
// logs the player in.
func (g *Gatekeeper) Register(ctx context.Context, identity Identity, args []string) error {
	_, span := g.tracer.Start(ctx, "auth.register",
		trace.WithAttributes(attribute.String("player.kind", identity.Kind())))
	defer span.End()

	id := identity.ID
	if len(args) != 1 {
		g.proxy.SendMessage(id, MsgRegisterUsage)
		return oops.Code(CodeUsage).With("args", len(args)).Errorf("register takes exactly one argument")
	}

	if identity.Verified {
		g.proxy.SendMessage(id, MsgNoRegistrationNeeded)
		return nil
	}

	if g.store.IsRegistered(id) {
		g.proxy.SendMessage(id, MsgAlreadyRegistered)
		g.metrics.registration(ResultDuplicate)
		return ErrAlreadyRegistered(id)
	}

	secret := args[0]
	if err := ValidatePassword(secret); err != nil {
		g.proxy.SendMessage(id, weakPasswordMessage(err))
		g.metrics.registration(ResultWeak)
		return err
	}

	if err := g.store.Register(id, identity.Username, secret); err != nil {
		if errutil.Code(err) == CodeAlreadyRegistered {
			g.proxy.SendMessage(id, MsgAlreadyRegistered)
			g.metrics.registration(ResultDuplicate)
			return err
		}
		errutil.LogError(g.logger, "registration failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		g.proxy.SendMessage(id, MsgRegisterFailed)
		g.metrics.registration(ResultError)
		return err
	}

	g.sessions.MarkAuthenticated(id)
	g.observeSessions()
	g.metrics.registration(ResultSuccess)
	g.logger.Info("player registered", "player_id", id.String(), "username", identity.Username)

	g.proxy.SendMessage(id, MsgRegisterSuccess)
	g.proxy.SendMessage(id, fmt.Sprintf(MsgSendingTo, g.servers.Gameplay))
	g.route(identity, g.servers.Gameplay)
	return nil
}

// Reload handles /authreload. Player sources need PermissionReload.
func (g *Gatekeeper) Reload(ctx context.Context, source CommandSource) error {
	_, span := g.tracer.Start(ctx, "auth.reload")
	defer span.End()

	if !source.HasPermission(PermissionReload) {
		source.SendMessage(MsgNoPermission)
		return oops.Code(CodePermissionDenied).
			With("permission", PermissionReload).
			Errorf("missing permission")
	}

	if g.reloader == nil {
		source.SendMessage(MsgReloadFailed)
		return oops.Code(CodeReloadFailed).Errorf("no config source to reload")
	}

	if err := g.reloader.Reload(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		source.SendMessage(MsgReloadFailed)
		return oops.Code(CodeReloadFailed).Wrap(err)
	}

	g.logger.Info("access policy reloaded")
	source.SendMessage(MsgReloadOK)
	return nil
}
