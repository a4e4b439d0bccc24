package chat

import "time"

// Record is the per-user document and the unit of persistence. Every write
// replaces the whole document.
type Record struct {
	UserID                  string    `json:"user_id"`
	CreatedAt               string    `json:"created_at"`
	ChatHistory             []Message `json:"chat_history"`
	NeedsImmediateAttention bool      `json:"needs_immediate_attention"`
	NeedsFollowUp           bool      `json:"needs_follow_up"`
}

// NewRecord creates an empty record for a first-contact user.
func NewRecord(userID string, now time.Time) *Record {
	return &Record{
		UserID:      userID,
		CreatedAt:   FormatTimestamp(now),
		ChatHistory: make([]Message, 0, 16),
	}
}

// Append adds a message at the end of the history.
func (r *Record) Append(msg Message) {
	r.ChatHistory = append(r.ChatHistory, msg)
}

// Recent returns up to n of the newest messages, oldest first. The slice
// aliases the record; callers must not modify it.
func (r *Record) Recent(n int) []Message {
	if n <= 0 || len(r.ChatHistory) == 0 {
		return nil
	}
	start := len(r.ChatHistory) - n
	if start < 0 {
		start = 0
	}
	return r.ChatHistory[start:]
}

// Clone returns a deep copy so stores never share memory with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ChatHistory = make([]Message, len(r.ChatHistory))
	for i, msg := range r.ChatHistory {
		out.ChatHistory[i] = msg.Clone()
	}
	return &out
}
