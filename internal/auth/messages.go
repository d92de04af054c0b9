// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Player-facing messages.
const (
	MsgVerificationRequired = "This server requires a verified account. Please join with a premium account."

	MsgWelcomePremium = "Welcome, %s! Your account is verified."
	MsgLoginHint      = "Please log in with /login <password>."
	MsgRegisterHint   = "No account yet? Register with /register <password>."
	MsgNameCollision  = "Warning: the name %s belongs to a verified premium account. If that is not you, consider joining under another name."

	MsgLoginRequired = "You must log in before joining other servers!"
	MsgMaySwitch     = "You are logged in and may switch to other servers now."

	MsgCommandLoginFirst    = "Please log in first with /login <password>!"
	MsgCommandRegisterFirst = "Please register first with /register <password>!"
	MsgChatDenied           = "Please log in before chatting!"

	MsgLoginUsage         = "Usage: /login <password>"
	MsgAlreadyLoggedIn    = "You are already logged in!"
	MsgNotRegistered      = "You are not registered yet! Use /register <password> to register."
	MsgWrongPassword      = "Wrong password!"
	MsgLoginSuccess       = "Logged in successfully!"
	MsgRateLimited        = "Too many failed login attempts. Try again in %s."
	MsgLockedOutAfterFail = "Too many failed login attempts. Logins are blocked for %s."

	MsgRegisterUsage        = "Usage: /register <password>"
	MsgAlreadyRegistered    = "You are already registered!"
	MsgNoRegistrationNeeded = "Your account is verified; no registration is needed."
	MsgRegisterSuccess      = "Registered successfully!"
	MsgRegisterFailed       = "Registration failed. Please try again or contact an administrator."

	MsgPasswordTooShort = "Password must be at least %d characters long."
	MsgPasswordNoUpper  = "Password must contain at least one upper-case letter."
	MsgPasswordNoLower  = "Password must contain at least one lower-case letter."
	MsgPasswordNoDigit  = "Password must contain at least one digit."

	MsgSendingTo      = "Sending you to %s..."
	MsgServerNotFound = "Error: server %s is not available. Please contact an administrator."

	MsgNoPermission = "You do not have permission to use this command!"
	MsgReloadOK     = "Configuration reloaded."
	MsgReloadFailed = "Configuration reload failed; the previous configuration is still active."
)

// weakPasswordMessage maps an AUTH_WEAK_PASSWORD error to the hint for the
// rule that failed.
func weakPasswordMessage(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return fmt.Sprintf(MsgPasswordTooShort, MinPasswordLength)
	}
	rule, _ := oopsErr.Context()["rule"].(string) //nolint:errcheck // type assertion, not an error
	switch rule {
	case RuleUpper:
		return MsgPasswordNoUpper
	case RuleLower:
		return MsgPasswordNoLower
	case RuleDigit:
		return MsgPasswordNoDigit
	default:
		return fmt.Sprintf(MsgPasswordTooShort, MinPasswordLength)
	}
}

// formatWait renders a retry delay rounded up to whole seconds.
func formatWait(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return d.Round(time.Second).String()
}
