// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails the test unless err carries the oops code. Gatekeeper
// outcomes, credential store failures and config errors are all told apart by
// code, so tests match on it rather than on message text.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, Code(err), "unexpected code for %v", err)
}

// AssertErrorContext fails the test unless err carries key=value in its oops
// context, such as the "rule" a weak password broke.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}
