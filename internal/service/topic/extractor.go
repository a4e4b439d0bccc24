// Package topic detects recurring conversation themes with keyword lists.
package topic

import (
	"strings"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// DefaultThreshold is how many messages must mention a topic before it counts.
const DefaultThreshold = 2

// Topic is a label with the keywords that signal it.
type Topic struct {
	Label    string
	Keywords []string
}

// Vocabulary is the fixed, ordered topic list.
var Vocabulary = []Topic{
	{Label: "studies", Keywords: []string{"exam", "test", "study", "homework", "assignment", "class", "school", "college", "marks"}},
	{Label: "family", Keywords: []string{"mom", "dad", "parents", "family", "sister", "brother", "mother", "father"}},
	{Label: "relationships", Keywords: []string{"friend", "girlfriend", "boyfriend", "partner", "relationship", "dating"}},
	{Label: "career", Keywords: []string{"job", "career", "future", "interview", "resume", "placement", "internship"}},
	{Label: "stress", Keywords: []string{"stress", "anxious", "anxiety", "worried", "overwhelmed", "pressure"}},
	{Label: "sleep", Keywords: []string{"sleep", "tired", "insomnia", "can't sleep", "restless"}},
	{Label: "health", Keywords: []string{"sick", "ill", "pain", "headache", "stomach", "doctor", "hospital"}},
}

// Extractor counts, per topic, the messages that mention any of its keywords.
type Extractor struct {
	topics    []Topic
	threshold int
}

// NewExtractor returns an extractor over Vocabulary with DefaultThreshold.
func NewExtractor() *Extractor {
	return &Extractor{topics: Vocabulary, threshold: DefaultThreshold}
}

// Extract returns the topics mentioned in at least threshold messages, in
// vocabulary order.
func (e *Extractor) Extract(messages []chat.Message) []string {
	if len(messages) == 0 {
		return nil
	}

	counts := make([]int, len(e.topics))
	for _, msg := range messages {
		content := strings.ToLower(msg.Content)
		if content == "" {
			continue
		}
		for i, topic := range e.topics {
			if mentions(content, topic.Keywords) {
				counts[i]++
			}
		}
	}

	var found []string
	for i, topic := range e.topics {
		if counts[i] >= e.threshold {
			found = append(found, topic.Label)
		}
	}
	return found
}

func mentions(content string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
