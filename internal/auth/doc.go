// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth is the authentication gatekeeper for a network of game servers
// behind a single entry proxy.
//
// # Players
//
// An Identity arrives from the connection layer. Verified identities were
// vouched for by the platform at handshake time and are authenticated from
// the moment they connect. Offline identities must prove themselves with
// /register or /login before they may chat, run commands or leave the login
// server.
//
// # Components
//
//   - CredentialStore - write-once secrets persisted to a flat file
//   - RateLimiter - failed login attempts per identity
//   - PremiumVerifier - checks whether an offline name belongs to a premium account
//   - SessionRegistry - who is connected and who has authenticated
//   - Gatekeeper - the decision policy that ties the above together
//
// The Gatekeeper drives the entry proxy through the Proxy interface and never
// holds a lock while calling into it.
package auth
