// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// Password rules reported in the "rule" context of AUTH_WEAK_PASSWORD errors.
const (
	RuleLength = "length"
	RuleUpper  = "upper"
	RuleLower  = "lower"
	RuleDigit  = "digit"
)

// ValidatePassword checks a registration password against the strength policy.
// Password requirements:
// - At least MinPasswordLength characters
// - At least one upper-case letter
// - At least one lower-case letter
// - At least one digit
//
// The first failing rule is reported so the player gets a specific hint.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return weakPassword(RuleLength, "password must be at least %d characters", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return weakPassword(RuleUpper, "password must contain an upper-case letter")
	}
	if !hasLower {
		return weakPassword(RuleLower, "password must contain a lower-case letter")
	}
	if !hasDigit {
		return weakPassword(RuleDigit, "password must contain a digit")
	}
	return nil
}

func weakPassword(rule, format string, args ...any) error {
	return oops.Code(CodeWeakPassword).
		With("rule", rule).
		With("min", MinPasswordLength).
		Errorf(format, args...)
}
