package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EmotionScore is one label with its normalized score in [0,1].
type EmotionScore struct {
	Label string
	Score float64
}

// EmotionScores is an ordered label→score mapping. Order is significant: it
// decides ties and is preserved through JSON as object key order.
type EmotionScores []EmotionScore

// Get returns the score recorded for label.
func (s EmotionScores) Get(label string) (float64, bool) {
	for _, item := range s {
		if item.Label == label {
			return item.Score, true
		}
	}
	return 0, false
}

// Dominant returns the label with the highest score; the earliest entry wins ties.
func (s EmotionScores) Dominant() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	best := s[0]
	for _, item := range s[1:] {
		if item.Score > best.Score {
			best = item
		}
	}
	return best.Label, true
}

// Clone returns an independent copy.
func (s EmotionScores) Clone() EmotionScores {
	if s == nil {
		return nil
	}
	return append(EmotionScores(nil), s...)
}

// MarshalJSON writes the scores as a JSON object in slice order.
func (s EmotionScores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order.
func (s *EmotionScores) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("emotion scores: expected object, got %v", tok)
	}

	out := EmotionScores{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("emotion scores: expected key, got %v", tok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("emotion scores: value for %q: %w", label, err)
		}
		out = append(out, EmotionScore{Label: label, Score: score})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}
