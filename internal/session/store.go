package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicate is returned when creating a session whose ID already
	// exists. Callers treat it as "already resolved, re-read".
	ErrDuplicate = errors.New("session already exists")
)

// RowStore persists session records as one JSON file per session. The
// exclusive file create is the uniqueness constraint that makes session
// creation idempotent under concurrency.
type RowStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewRowStore creates a RowStore rooted at baseDir.
func NewRowStore(baseDir string) (*RowStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &RowStore{baseDir: baseDir}, nil
}

func (s *RowStore) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// Create writes a new session record. Returns ErrDuplicate if a record
// with the same ID already exists.
func (s *RowStore) Create(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	f, err := os.OpenFile(s.path(sess.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Get reads one session record.
func (s *RowStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("read session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// Update overwrites an existing session record.
func (s *RowStore) Update(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(sess.ID)); err != nil {
		return ErrNotFound
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return os.WriteFile(s.path(sess.ID), data, 0o644)
}

// Delete removes one session record. Deleting an unknown session is not
// an error.
func (s *RowStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *RowStore) ListByUser(userID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var out []Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
