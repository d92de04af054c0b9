// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
)

func TestSessionRegistry_VerifiedAlwaysAuthenticated(t *testing.T) {
	r := auth.NewSessionRegistry()
	premium := auth.Identity{ID: uuid.New(), Username: "Notch", Verified: true}

	assert.True(t, r.IsAuthenticated(premium), "without a session")
	sid := r.Track(premium)
	assert.True(t, r.IsAuthenticated(premium))
	r.End(premium.ID, sid)
	assert.True(t, r.IsAuthenticated(premium), "after forget")
}

func TestSessionRegistry_OfflineLifecycle(t *testing.T) {
	r := auth.NewSessionRegistry()
	offline := auth.Identity{ID: uuid.New(), Username: "Steve"}

	sid := r.Track(offline)
	assert.False(t, r.IsAuthenticated(offline))

	r.MarkAuthenticated(offline.ID)
	assert.True(t, r.IsAuthenticated(offline))

	total, authenticated := r.Count()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, authenticated)

	assert.True(t, r.End(offline.ID, sid))
	assert.False(t, r.IsAuthenticated(offline))
	assert.Nil(t, r.Get(offline.ID))
}

func TestSessionRegistry_TrackReplacesSession(t *testing.T) {
	r := auth.NewSessionRegistry()
	offline := auth.Identity{ID: uuid.New(), Username: "Steve"}

	first := r.Track(offline)
	r.MarkAuthenticated(offline.ID)
	second := r.Track(offline)

	assert.NotEqual(t, first, second)
	assert.False(t, r.IsCurrent(offline.ID, first))
	assert.True(t, r.IsCurrent(offline.ID, second))
	assert.False(t, r.IsAuthenticated(offline), "a new connection starts unauthenticated")
}

func TestSessionRegistry_IsCurrentAfterEnd(t *testing.T) {
	r := auth.NewSessionRegistry()
	id := uuid.New()
	sid := r.Track(auth.Identity{ID: id, Username: "Steve"})

	r.End(id, sid)
	assert.False(t, r.IsCurrent(id, sid))
}

func TestSessionRegistry_EndIgnoresReplacedSession(t *testing.T) {
	r := auth.NewSessionRegistry()
	offline := auth.Identity{ID: uuid.New(), Username: "Steve"}

	stale := r.Track(offline)
	fresh := r.Track(offline)
	r.MarkAuthenticated(offline.ID)

	assert.False(t, r.End(offline.ID, stale))
	assert.True(t, r.IsCurrent(offline.ID, fresh))
	assert.True(t, r.IsAuthenticated(offline))

	assert.True(t, r.End(offline.ID, fresh))
	assert.False(t, r.End(offline.ID, fresh), "already ended")
}

func TestSessionRegistry_Username(t *testing.T) {
	r := auth.NewSessionRegistry()
	id := uuid.New()

	_, ok := r.Username(id)
	assert.False(t, ok)

	r.Track(auth.Identity{ID: id, Username: "Steve"})
	name, ok := r.Username(id)
	require.True(t, ok)
	assert.Equal(t, "Steve", name)
}

func TestSessionRegistry_GetReturnsCopy(t *testing.T) {
	r := auth.NewSessionRegistry()
	id := uuid.New()
	r.Track(auth.Identity{ID: id, Username: "Steve"})

	s := r.Get(id)
	require.NotNil(t, s)
	s.Authenticated = true

	assert.False(t, r.Get(id).Authenticated)
}
