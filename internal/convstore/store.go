// Package convstore provides the durable conversation store and the
// read/write adapter the orchestrator uses. The store keeps an append-only
// message log per durable session; trimming happens only on read-time views.
package convstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/pptgirl/pptgirl/internal/message"
)

// TokenCounts is the store's token accounting for one conversation.
type TokenCounts struct {
	TotalTokens int `json:"total_tokens"`
}

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("conversation not found")

// Store is the durable conversation store surface. Implementations must
// keep the message log append-only.
type Store interface {
	CreateSession(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, convID string, msg message.Message) error
	GetMessages(ctx context.Context, convID string) ([]message.Message, error)
	GetTokenCounts(ctx context.Context, convID string) (TokenCounts, error)
	RecordTokenCounts(ctx context.Context, convID string, counts TokenCounts) error
	DeleteSession(ctx context.Context, convID string) error
}

// FileStore is a disk-backed Store. Each conversation is a directory with
// a JSONL message log and a token-count sidecar.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) convDir(convID string) string {
	return filepath.Join(s.baseDir, convID)
}

// CreateSession allocates a new durable conversation record.
func (s *FileStore) CreateSession(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "conv-" + uuid.NewString()
	if err := os.MkdirAll(s.convDir(id), 0o755); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// AppendMessage appends one message to the conversation log.
func (s *FileStore) AppendMessage(_ context.Context, convID string, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.convDir(convID)
	if _, err := os.Stat(dir); err != nil {
		return ErrNotFound
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "messages.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetMessages returns the full ordered message log.
func (s *FileStore) GetMessages(_ context.Context, convID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.convDir(convID)
	if _, err := os.Stat(dir); err != nil {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(dir, "messages.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // conversation exists, no messages yet
		}
		return nil, fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	var msgs []message.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg message.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// A torn write at the tail must not poison the whole log.
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}
	return msgs, nil
}

// GetTokenCounts returns the recorded token totals for a conversation.
func (s *FileStore) GetTokenCounts(_ context.Context, convID string) (TokenCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.convDir(convID), "usage.json"))
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(s.convDir(convID)); statErr != nil {
				return TokenCounts{}, ErrNotFound
			}
			return TokenCounts{}, nil
		}
		return TokenCounts{}, fmt.Errorf("read usage: %w", err)
	}

	var counts TokenCounts
	if err := json.Unmarshal(data, &counts); err != nil {
		return TokenCounts{}, fmt.Errorf("parse usage: %w", err)
	}
	return counts, nil
}

// RecordTokenCounts stores the latest token totals for a conversation.
func (s *FileStore) RecordTokenCounts(_ context.Context, convID string, counts TokenCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.convDir(convID)
	if _, err := os.Stat(dir); err != nil {
		return ErrNotFound
	}

	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "usage.json"), data, 0o644); err != nil {
		return fmt.Errorf("write usage: %w", err)
	}
	return nil
}

// DeleteSession removes a conversation and its log.
func (s *FileStore) DeleteSession(_ context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.convDir(convID)); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
