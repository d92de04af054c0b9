// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const (
	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes
	argon2Prefix  = "$argon2id$"
)

// Argon2Params are the cost parameters used for new hashes. Existing hashes
// carry their own parameters and verify regardless of the current setting.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored secret.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a
	// corrupt hash.
	Verify(password, stored string) (bool, error)

	// NeedsUpgrade returns true if the stored secret should be re-hashed.
	NeedsUpgrade(stored string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. Stored secrets
// without the argon2id prefix are treated as legacy plaintext records written
// before hashing was introduced.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params}
}

// NewArgon2idHasherWithParams creates a hasher with custom cost parameters.
// Zero fields fall back to the defaults.
func NewArgon2idHasherWithParams(p Argon2Params) *Argon2idHasher {
	if p.Time == 0 {
		p.Time = DefaultArgon2Params.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultArgon2Params.Threads
	}
	return &Argon2idHasher{params: p}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the password matches the stored secret.
func (h *Argon2idHasher) Verify(password, stored string) (bool, error) {
	if !strings.HasPrefix(stored, argon2Prefix) {
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, nil
	}

	parts := strings.Split(stored, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<10 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true for legacy plaintext secrets.
func (h *Argon2idHasher) NeedsUpgrade(stored string) bool {
	return !strings.HasPrefix(stored, argon2Prefix)
}
