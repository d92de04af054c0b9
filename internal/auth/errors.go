// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Error codes for gatekeeper failures. Policy denials are expected outcomes
// and map to player-facing messages; the remaining codes are I/O failures.
const (
	CodeAlreadyRegistered  = "AUTH_ALREADY_REGISTERED"
	CodeNotRegistered      = "AUTH_NOT_REGISTERED"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeRateLimited        = "AUTH_RATE_LIMITED"
	CodeNotAllowed         = "AUTH_NOT_ALLOWED"
	CodeCredentialsLoad    = "CREDENTIALS_LOAD_FAILED"
	CodeCredentialsSave    = "CREDENTIALS_SAVE_FAILED"
)

// ErrAlreadyRegistered creates an error for a registration on an identity that
// already holds a credential.
func ErrAlreadyRegistered(id uuid.UUID) error {
	return oops.Code(CodeAlreadyRegistered).
		With("player_id", id.String()).
		Errorf("player is already registered")
}

// ErrNotRegistered creates an error for a login without a credential.
func ErrNotRegistered(id uuid.UUID) error {
	return oops.Code(CodeNotRegistered).
		With("player_id", id.String()).
		Errorf("player is not registered")
}

// ErrInvalidCredentials creates an error for a wrong password.
func ErrInvalidCredentials(id uuid.UUID) error {
	return oops.Code(CodeInvalidCredentials).
		With("player_id", id.String()).
		Errorf("invalid password")
}

// ErrRateLimited creates an error for a login attempt made during a lockout.
func ErrRateLimited(id uuid.UUID, retryAfter time.Duration) error {
	return oops.Code(CodeRateLimited).
		With("player_id", id.String()).
		With("retry_after", retryAfter).
		Errorf("too many failed login attempts")
}

// IsPolicyDenial reports whether err is an expected, player-facing denial
// rather than an operational failure.
func IsPolicyDenial(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case CodeAlreadyRegistered, CodeNotRegistered, CodeWeakPassword,
		CodeInvalidCredentials, CodeRateLimited, CodeNotAllowed,
		CodeUsage, CodePermissionDenied:
		return true
	default:
		return false
	}
}
