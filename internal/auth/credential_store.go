// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/authgate/pkg/errutil"
)

// credentialFieldSep separates the id, display name and secret of a record.
const credentialFieldSep = ":"

// NameResolver returns the current display name of an online player.
type NameResolver interface {
	Username(id uuid.UUID) (string, bool)
}

// CredentialStore owns the durable id -> secret mapping.
type CredentialStore interface {
	IsRegistered(id uuid.UUID) bool
	Register(id uuid.UUID, username, secret string) error
	Verify(id uuid.UUID, secret string) bool
}

type credential struct {
	username string
	secret   string
}

// FileCredentialStore keeps credentials in memory and mirrors them to a
// plain-text file with one "id:displayName:secret" record per line.
// Every change rewrites the whole file.
type FileCredentialStore struct {
	path   string
	hasher PasswordHasher
	names  NameResolver
	logger *slog.Logger

	// writeMu serializes mutations and file writes; mu guards records.
	writeMu sync.Mutex
	mu      sync.RWMutex
	records map[uuid.UUID]credential
}

// StoreOption configures a FileCredentialStore during construction.
type StoreOption func(*FileCredentialStore)

// WithStoreLogger sets the logger used for load and save diagnostics.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *FileCredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNameResolver refreshes display names from live sessions on save.
func WithNameResolver(names NameResolver) StoreOption {
	return func(s *FileCredentialStore) {
		s.names = names
	}
}

// NewFileCredentialStore creates a store backed by path. Call Load to read
// existing records.
func NewFileCredentialStore(path string, hasher PasswordHasher, opts ...StoreOption) (*FileCredentialStore, error) {
	if path == "" {
		return nil, oops.Errorf("credentials file path is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	s := &FileCredentialStore{
		path:    path,
		hasher:  hasher,
		logger:  slog.New(slog.DiscardHandler),
		records: make(map[uuid.UUID]credential),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Load reads the backing file, creating it when missing. Malformed lines are
// skipped. On an I/O failure the in-memory records are left untouched and the
// error is returned after being logged.
func (s *FileCredentialStore) Load() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded, err := s.readFile()
	if err != nil {
		errutil.LogError(s.logger, "failed to load credentials", err)
		return err
	}

	s.mu.Lock()
	for id, c := range loaded {
		s.records[id] = c
	}
	count := len(s.records)
	s.mu.Unlock()

	s.logger.Info("credentials loaded", "path", s.path, "count", count)
	return nil
}

func (s *FileCredentialStore) readFile() (map[uuid.UUID]credential, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(s.path), 0o700); mkErr != nil {
			return nil, oops.Code(CodeCredentialsLoad).With("path", s.path).Wrap(mkErr)
		}
		created, createErr := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o600)
		if createErr != nil {
			return nil, oops.Code(CodeCredentialsLoad).With("path", s.path).Wrap(createErr)
		}
		_ = created.Close() //nolint:errcheck // empty file, nothing to flush
		return map[uuid.UUID]credential{}, nil
	}
	if err != nil {
		return nil, oops.Code(CodeCredentialsLoad).With("path", s.path).Wrap(err)
	}
	defer f.Close() //nolint:errcheck // read-only

	records := make(map[uuid.UUID]credential)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		id, c, ok := parseCredentialLine(line)
		if !ok {
			s.logger.Warn("skipping malformed credential record", "path", s.path, "line", lineNo)
			continue
		}
		records[id] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, oops.Code(CodeCredentialsLoad).With("path", s.path).With("line", lineNo).Wrap(err)
	}
	return records, nil
}

func parseCredentialLine(line string) (uuid.UUID, credential, bool) {
	parts := strings.Split(line, credentialFieldSep)
	if len(parts) != 3 || parts[2] == "" {
		return uuid.Nil, credential{}, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, credential{}, false
	}
	return id, credential{username: parts[1], secret: parts[2]}, true
}

// IsRegistered reports whether the identity holds a credential.
func (s *FileCredentialStore) IsRegistered(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Count returns the number of stored credentials.
func (s *FileCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Register stores a new credential and persists the file before returning.
// Returns AUTH_ALREADY_REGISTERED if the identity already has one; the stored
// secret is never replaced. If the write fails the record is rolled back.
func (s *FileCredentialStore) Register(id uuid.UUID, username, secret string) error {
	hashed, err := s.hasher.Hash(secret)
	if err != nil {
		return oops.Code(CodeCredentialsSave).With("player_id", id.String()).Wrap(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, exists := s.records[id]; exists {
		s.mu.Unlock()
		return ErrAlreadyRegistered(id)
	}
	s.records[id] = credential{username: username, secret: hashed}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		return oops.Code(CodeCredentialsSave).With("player_id", id.String()).Wrap(err)
	}
	return nil
}

// Verify reports whether secret matches the stored credential. A missing
// record or a corrupt hash is a non-match. Legacy plaintext records are
// re-hashed after a successful match.
func (s *FileCredentialStore) Verify(id uuid.UUID, secret string) bool {
	if secret == "" {
		return false
	}

	s.mu.RLock()
	c, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	match, err := s.hasher.Verify(secret, c.secret)
	if err != nil {
		errutil.LogError(s.logger, "stored credential is corrupt", oops.With("player_id", id.String()).Wrap(err))
		return false
	}
	if match && s.hasher.NeedsUpgrade(c.secret) {
		s.upgrade(id, c.secret, secret)
	}
	return match
}

func (s *FileCredentialStore) upgrade(id uuid.UUID, old, secret string) {
	hashed, err := s.hasher.Hash(secret)
	if err != nil {
		errutil.LogError(s.logger, "failed to hash legacy credential", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	c, ok := s.records[id]
	if !ok || c.secret != old {
		s.mu.Unlock()
		return
	}
	c.secret = hashed
	s.records[id] = c
	s.mu.Unlock()

	if err := s.save(); err != nil {
		errutil.LogError(s.logger, "failed to persist upgraded credential", err)
		return
	}
	s.logger.Info("upgraded legacy credential", "player_id", id.String())
}

// save rewrites the whole file through a temp file and rename.
// Callers must hold writeMu.
func (s *FileCredentialStore) save() error {
	lines := s.snapshotLines()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.With("path", s.path).Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return oops.With("path", s.path).Wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best effort

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			_ = tmp.Close() //nolint:errcheck // already failing
			cleanup()
			return oops.With("path", tmpName).Wrap(err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		cleanup()
		return oops.With("path", tmpName).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		cleanup()
		return oops.With("path", tmpName).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.With("path", tmpName).Wrap(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return oops.With("path", s.path).Wrap(err)
	}
	return nil
}

// snapshotLines renders the records sorted by id, refreshing display names
// from live sessions where available.
func (s *FileCredentialStore) snapshotLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		c := s.records[id]
		if s.names != nil {
			if name, ok := s.names.Username(id); ok && name != "" {
				c.username = name
				s.records[id] = c
			}
		}
		lines = append(lines, strings.Join([]string{id.String(), nameReplacer.Replace(c.username), c.secret}, credentialFieldSep))
	}
	return lines
}

// nameReplacer keeps display names from breaking the record format.
var nameReplacer = strings.NewReplacer(credentialFieldSep, "_", "\n", "_", "\r", "_")
