// Package chat keeps the per-user generation history for users that have an
// active session in this process.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Session describes an open handle.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
	Messages  int
}

type handle struct {
	session Session
	history []*schema.Message
}

// Service caches one handle per user. A handle is seeded once from persisted
// history and afterwards only grows by Append.
type Service struct {
	mu      sync.RWMutex
	handles map[string]*handle
	now     func() time.Time
}

// NewService bootstraps an empty handle cache.
func NewService() *Service {
	return &Service{
		handles: make(map[string]*handle),
		now:     time.Now,
	}
}

// Open returns the user's handle, creating it from seed when absent. created
// reports whether seed was used.
func (s *Service) Open(_ context.Context, userID string, seed []chat.Message) (Session, bool, error) {
	if userID == "" {
		return Session{}, false, ErrUserRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[userID]; ok {
		return h.snapshotSession(), false, nil
	}

	history := make([]*schema.Message, 0, len(seed)+16)
	for _, msg := range seed {
		history = append(history, toSchema(msg.Role, msg.Content))
	}

	h := &handle{
		session: Session{
			ID:        uuid.NewString(),
			UserID:    userID,
			StartedAt: s.now().UTC(),
		},
		history: history,
	}
	s.handles[userID] = h
	return h.snapshotSession(), true, nil
}

// Active reports whether the user has an open handle.
func (s *Service) Active(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handles[userID]
	return ok
}

// Append adds one message to the user's handle.
func (s *Service) Append(_ context.Context, userID string, role chat.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[userID]
	if !ok {
		return ErrSessionNotFound
	}
	h.history = append(h.history, toSchema(role, content))
	return nil
}

// Snapshot returns a copy of the user's generation history.
func (s *Service) Snapshot(_ context.Context, userID string) ([]*schema.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handles[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]*schema.Message, len(h.history))
	for i, msg := range h.history {
		clone := *msg
		copied[i] = &clone
	}
	return copied, nil
}

func (h *handle) snapshotSession() Session {
	out := h.session
	out.Messages = len(h.history)
	return out
}

func toSchema(role chat.Role, content string) *schema.Message {
	if role == chat.RoleUser {
		return schema.UserMessage(content)
	}
	return schema.AssistantMessage(content, nil)
}
