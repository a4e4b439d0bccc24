package chat

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampLayout is the layout written for every new message and record.
const TimestampLayout = time.RFC3339Nano

// legacyTimestampLayout matches records written by the earlier terminal client.
const legacyTimestampLayout = "2006-01-02 15:04:05"

// Message is one conversational turn. It is created once and never mutated.
type Message struct {
	Role            Role          `json:"role"`
	Content         string        `json:"content"`
	Timestamp       string        `json:"timestamp"`
	Emotions        EmotionScores `json:"emotions,omitempty"`
	DominantEmotion string        `json:"dominant_emotion,omitempty"`
	CrisisDetected  *CrisisInfo   `json:"crisis_detected,omitempty"`
}

// NewUserMessage builds a user message carrying the emotion and crisis capture.
func NewUserMessage(content string, at time.Time, emotions EmotionScores, dominant string, crisis CrisisInfo) Message {
	captured := crisis
	return Message{
		Role:            RoleUser,
		Content:         content,
		Timestamp:       FormatTimestamp(at),
		Emotions:        emotions.Clone(),
		DominantEmotion: dominant,
		CrisisDetected:  &captured,
	}
}

// NewAssistantMessage builds an assistant message from the final reply text.
func NewAssistantMessage(content string, at time.Time) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: FormatTimestamp(at),
	}
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	out.Emotions = m.Emotions.Clone()
	if m.CrisisDetected != nil {
		info := m.CrisisDetected.Clone()
		out.CrisisDetected = &info
	}
	return out
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses message and record timestamps, including the legacy
// space-separated form. The bool is false when the value is not parseable.
func ParseTimestamp(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(legacyTimestampLayout, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
