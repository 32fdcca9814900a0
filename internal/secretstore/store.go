// Package secretstore maps an agent's credential_ref to its credential,
// reading from a directory of owner-only files (spec.md §4.1). It is
// read-only at runtime aside from an explicit Reload.
package secretstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agent-forge/agent-forge/models"
)

// ErrNotFound is returned when credential_ref has no matching secret file.
var ErrNotFound = errors.New("secretstore: credential not found")

// Credential wraps a raw token so it can never be logged in full. It
// implements slog.LogValuer so even a direct slog.Any("token", cred) call
// is redacted.
type Credential struct {
	raw string
}

func (c Credential) String() string                 { return "***redacted***" }
func (c Credential) GoString() string                { return "***redacted***" }
func (c Credential) LogValue() slog.Value            { return slog.StringValue("***redacted***") }
func (c Credential) Reveal() string                  { return c.raw }
func (c Credential) Equal(other Credential) bool      { return c.raw == other.raw }

// Store is the file-backed credential store.
type Store struct {
	dir    string
	envTag models.EnvironmentTag

	mu    sync.RWMutex
	creds map[string]Credential
}

// New loads every file in dir as a credential keyed by its filename (the
// credential_ref). Files with group- or world-readable permissions are
// rejected: fatal in prod, a warning otherwise (spec.md §4.1).
func New(dir string, envTag models.EnvironmentTag) (*Store, error) {
	s := &Store{dir: dir, envTag: envTag}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-scans the secrets directory. The Supervisor's POST /reload
// handler calls it; no signal handler does.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.creds = map[string]Credential{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading secrets directory %s: %w", s.dir, err)
	}

	loaded := make(map[string]Credential, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			slog.Warn("secretstore: stat failed, skipping", "path", path, "error", err)
			continue
		}
		if err := s.checkPermissions(path, info.Mode()); err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("secretstore: read failed, skipping", "path", path, "error", err)
			continue
		}
		loaded[e.Name()] = Credential{raw: strings.TrimSpace(string(raw))}
	}

	s.mu.Lock()
	s.creds = loaded
	s.mu.Unlock()
	slog.Info("secretstore: loaded credentials", "dir", s.dir, "count", len(loaded))
	return nil
}

// checkPermissions rejects world/group-readable secret files. In prod this
// is fatal (the caller should abort startup); elsewhere it is only a
// warning, matching spec.md §4.1 exactly.
func (s *Store) checkPermissions(path string, mode os.FileMode) error {
	if mode.Perm()&0o077 == 0 {
		return nil
	}
	msg := fmt.Sprintf("secret file %s is group- or world-readable (mode %s)", path, mode.Perm())
	if s.envTag == models.EnvProd {
		return fmt.Errorf("secretstore: %s — refusing to start in prod", msg)
	}
	slog.Warn("secretstore: insecure permissions", "path", path, "mode", mode.Perm().String())
	return nil
}

// Get returns the credential for ref, or ErrNotFound.
func (s *Store) Get(ref string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[ref]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return c, nil
}

// Loaded returns the set of currently loaded raw credential strings, used by
// the redacting slog handler to scrub log output. Callers must not persist
// the returned slice beyond the immediate call.
func (s *Store) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.creds))
	for _, c := range s.creds {
		if c.raw != "" {
			out = append(out, c.raw)
		}
	}
	return out
}
