// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for logging and inspecting oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error at error level with structured context if it's an
// oops error. For oops errors the code and context are logged as separate
// attributes; other errors are logged as a plain string.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, attrs(err)...)
}

// LogDenial logs an expected, player-facing refusal at info level.
func LogDenial(logger *slog.Logger, msg string, err error) {
	logger.Info(msg, attrs(err)...)
}

// Code returns the oops code carried by err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string) //nolint:errcheck // type assertion, not an error
	return code
}

func attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	out := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		out = append(out, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}
