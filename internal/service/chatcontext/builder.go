// Package chatcontext renders the per-turn context block that is prepended to
// the user's message before generation.
package chatcontext

import (
	"sort"
	"strings"
	"time"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/emotion"
	"github.com/zhouzirui/sahayak/backend/internal/service/topic"
)

// NoContext is returned when there is neither history nor emotion data.
const NoContext = "No previous conversation context available."

const (
	contextWindow  = 10
	renderedWindow = 5
	mixSize        = 3

	followUpNotice = "\n[IMPORTANT] This user was previously in crisis and may need follow-up care. " +
		"Be especially attentive to their emotional state and needs."
)

// Aggregate exposes the emotion summary for a user.
type Aggregate interface {
	Summary(userID string) emotion.Summary
}

// TopicSource finds recurring topics in a message window.
type TopicSource interface {
	Extract(messages []chat.Message) []string
}

// Options configures a Builder.
type Options struct {
	// Location is used for the hh:mm AM/PM prefix; defaults to UTC.
	Location      *time.Location
	AssistantName string
}

// Builder produces the textual context for a turn. Build never mutates the
// record and returns the same string for the same inputs.
type Builder struct {
	aggregate Aggregate
	topics    TopicSource
	location  *time.Location
	assistant string
}

// NewBuilder wires the aggregate and topic source. topics may be nil.
func NewBuilder(aggregate Aggregate, topics TopicSource, opts Options) *Builder {
	if topics == nil {
		topics = topic.NewExtractor()
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	assistant := strings.TrimSpace(opts.AssistantName)
	if assistant == "" {
		assistant = "Aanya"
	}
	return &Builder{
		aggregate: aggregate,
		topics:    topics,
		location:  location,
		assistant: assistant,
	}
}

// Build renders the context for userID from the record's recent history.
func (b *Builder) Build(userID string, record *chat.Record) string {
	var summary emotion.Summary
	if b.aggregate != nil {
		summary = b.aggregate.Summary(userID)
	}

	var recent []chat.Message
	followUp := false
	if record != nil {
		recent = record.Recent(contextWindow)
		followUp = record.NeedsFollowUp
	}

	if summary.Empty() && len(recent) == 0 && !followUp {
		return NoContext
	}

	parts := []string{"[CONVERSATION CONTEXT]"}
	if !summary.Empty() {
		parts = append(parts, emotionLines(summary)...)
	}

	if len(recent) > 0 {
		if topics := b.topics.Extract(recent); len(topics) > 0 {
			labels := make([]string, len(topics))
			for i, t := range topics {
				labels[i] = capitalize(t)
			}
			parts = append(parts, "\nKey Topics Discussed: "+strings.Join(labels, ", "))
		}

		parts = append(parts, "\n[RECENT MESSAGES]")
		start := len(recent) - renderedWindow
		if start < 0 {
			start = 0
		}
		for _, msg := range recent[start:] {
			parts = append(parts, b.messageLine(msg))
		}
	}

	if followUp {
		parts = append(parts, followUpNotice)
	}

	return strings.Join(parts, "\n")
}

func (b *Builder) messageLine(msg chat.Message) string {
	speaker := b.assistant
	if msg.IsUser() {
		speaker = "You"
	}

	line := speaker + ": " + msg.Content
	if msg.IsUser() && msg.DominantEmotion != "" {
		line += " [Felt: " + capitalize(msg.DominantEmotion) + "]"
	}

	if ts, ok := chat.ParseTimestamp(msg.Timestamp); ok {
		return ts.In(b.location).Format("03:04 PM") + " - " + line
	}
	return line
}

func emotionLines(summary emotion.Summary) []string {
	dominant := summary.Dominant
	if dominant == "" {
		dominant = "neutral"
	}
	score, _ := summary.Averages.Get(dominant)

	lines := []string{
		"Emotional State: " + capitalize(dominant) + " (Intensity: " + Intensity(dominant, score) + ")",
	}

	if trend := strings.TrimSpace(summary.Trend); trend != "" && trend != "stable" {
		lines = append(lines, "Emotional Trend: The user has been "+trend+"ly "+dominant+" in recent messages.")
	}

	if mix := topMix(summary); mix != "" {
		lines = append(lines, "Recent Emotional Mix: "+mix)
	}
	return lines
}

// Intensity bands the dominant average score.
func Intensity(dominant string, score float64) string {
	if strings.EqualFold(dominant, "neutral") {
		return "Neutral"
	}
	switch {
	case score < 0.34:
		return "Low"
	case score < 0.67:
		return "Medium"
	default:
		return "High"
	}
}

// topMix lists the three strongest averages; equal scores keep first-seen order.
func topMix(summary emotion.Summary) string {
	percentages := summary.Percentages()
	type entry struct {
		label string
		score float64
		text  string
	}
	entries := make([]entry, len(summary.Averages))
	for i, item := range summary.Averages {
		entries[i] = entry{label: item.Label, score: item.Score, text: percentages[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	if len(entries) > mixSize {
		entries = entries[:mixSize]
	}

	items := make([]string, len(entries))
	for i, e := range entries {
		items[i] = capitalize(e.label) + " (" + e.text + ")"
	}
	return strings.Join(items, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
