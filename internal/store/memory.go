package store

import (
	"context"
	"sync"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*chat.Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*chat.Record)}
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*chat.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Put replaces the stored record with a copy of record.
func (s *MemoryStore) Put(ctx context.Context, record *chat.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil || record.UserID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	s.records[record.UserID] = record.Clone()
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
