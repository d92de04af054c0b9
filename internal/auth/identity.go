// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/google/uuid"
)

// Identity is the connection layer's view of a player for one session.
// Verified is set at handshake time when the platform vouched for the
// account; the gatekeeper never mutates an Identity.
type Identity struct {
	ID       uuid.UUID
	Username string
	Verified bool
}

// Kind returns "premium" for platform-verified identities and "offline" for
// self-registered ones. Used as a log and metric label.
func (i Identity) Kind() string {
	if i.Verified {
		return "premium"
	}
	return "offline"
}

// Proxy is the entry proxy the gatekeeper drives. Implementations must be
// safe for concurrent use; the gatekeeper never holds a lock while calling
// into a Proxy.
type Proxy interface {
	// SendMessage delivers a chat line to a connected player.
	SendMessage(id uuid.UUID, text string)

	// Connect asks the proxy to move a player to the named server. It does not
	// wait for the transfer to complete.
	Connect(id uuid.UUID, server string) error

	// HasServer reports whether a backend server with this name is registered.
	HasServer(name string) bool

	// RequiresVerification reports whether the proxy only admits
	// platform-verified accounts.
	RequiresVerification() bool

	// HasPermission reports whether the player holds the permission node.
	HasPermission(id uuid.UUID, permission string) bool
}
