package chatcontext

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/emotion"
)

type staticAggregate struct {
	summary emotion.Summary
}

func (s staticAggregate) Summary(string) emotion.Summary { return s.summary }

func TestBuildEmptyReturnsSentinel(t *testing.T) {
	b := NewBuilder(staticAggregate{}, nil, Options{})
	assert.Equal(t, NoContext, b.Build("u1", chat.NewRecord("u1", time.Now())))
	assert.Equal(t, NoContext, b.Build("u1", nil))
}

func TestBuildRendersEmotionTopicsAndMessages(t *testing.T) {
	at := time.Date(2025, 3, 1, 15, 4, 0, 0, time.UTC)
	record := chat.NewRecord("u1", at)
	record.Append(chat.NewUserMessage("my exam is tomorrow", at, chat.EmotionScores{{Label: "fear", Score: 1}}, "fear", chat.CrisisInfo{}))
	record.Append(chat.NewAssistantMessage("That sounds stressful.", at))
	record.Append(chat.NewUserMessage("the test scares me", at, chat.EmotionScores{{Label: "sadness", Score: 1}}, "sadness", chat.CrisisInfo{}))

	aggregate := staticAggregate{summary: emotion.Summary{
		Averages: chat.EmotionScores{
			{Label: "sadness", Score: 0.2},
			{Label: "fear", Score: 0.5},
			{Label: "joy", Score: 0.2},
			{Label: "neutral", Score: 0.1},
		},
		Dominant:      "fear",
		TotalAnalyzed: 2,
	}}

	out := NewBuilder(aggregate, nil, Options{}).Build("u1", record)

	assert.True(t, strings.HasPrefix(out, "[CONVERSATION CONTEXT]\n"))
	assert.Contains(t, out, "Emotional State: Fear (Intensity: Medium)")
	assert.Contains(t, out, "Recent Emotional Mix: Fear (50.0%), Sadness (20.0%), Joy (20.0%)")
	assert.NotContains(t, out, "Emotional Trend")
	assert.Contains(t, out, "\nKey Topics Discussed: Studies")
	assert.Contains(t, out, "03:04 PM - You: my exam is tomorrow [Felt: Fear]")
	assert.Contains(t, out, "03:04 PM - Aanya: That sounds stressful.")
	assert.NotContains(t, out, "[IMPORTANT]")
}

func TestBuildUnparseableTimestampOmitsPrefix(t *testing.T) {
	record := chat.NewRecord("u1", time.Now())
	record.Append(chat.Message{Role: chat.RoleAssistant, Content: "hello", Timestamp: "yesterday"})

	out := NewBuilder(staticAggregate{}, nil, Options{}).Build("u1", record)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Aanya: hello", lines[len(lines)-1])
}

func TestBuildUsesConfiguredLocation(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	record := chat.NewRecord("u1", at)
	record.Append(chat.NewAssistantMessage("hi", at))

	kolkata := time.FixedZone("IST", 5*3600+1800)
	out := NewBuilder(staticAggregate{}, nil, Options{Location: kolkata}).Build("u1", record)
	assert.Contains(t, out, "03:30 PM - Aanya: hi")
}

func TestBuildOnlyRendersLastFiveMessages(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	record := chat.NewRecord("u1", at)
	for _, text := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		record.Append(chat.NewAssistantMessage(text, at))
	}

	out := NewBuilder(staticAggregate{}, nil, Options{}).Build("u1", record)
	assert.NotContains(t, out, "Aanya: m2")
	assert.Contains(t, out, "Aanya: m3")
	assert.Contains(t, out, "Aanya: m7")
}

func TestBuildFollowUpNotice(t *testing.T) {
	record := chat.NewRecord("u1", time.Now())
	record.Append(chat.NewAssistantMessage("hi", time.Now()))
	record.NeedsFollowUp = true

	out := NewBuilder(staticAggregate{}, nil, Options{}).Build("u1", record)
	assert.True(t, strings.HasSuffix(out, followUpNotice))
}

func TestBuildTrendLine(t *testing.T) {
	aggregate := staticAggregate{summary: emotion.Summary{
		Averages:      chat.EmotionScores{{Label: "sadness", Score: 0.9}},
		Dominant:      "sadness",
		Trend:         "increasing",
		TotalAnalyzed: 3,
	}}
	out := NewBuilder(aggregate, nil, Options{}).Build("u1", nil)
	assert.Contains(t, out, "Emotional State: Sadness (Intensity: High)")
	assert.Contains(t, out, "Emotional Trend: The user has been increasingly sadness in recent messages.")
}

func TestBuildIsIdempotentAndDoesNotMutate(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	record := chat.NewRecord("u1", at)
	record.Append(chat.NewUserMessage("family stress", at, chat.EmotionScores{{Label: "fear", Score: 1}}, "fear", chat.CrisisInfo{}))
	record.Append(chat.NewUserMessage("my mom again", at, nil, "", chat.CrisisInfo{}))
	before := record.Clone()

	b := NewBuilder(staticAggregate{}, nil, Options{})
	first := b.Build("u1", record)
	second := b.Build("u1", record)

	require.Equal(t, first, second)
	assert.Equal(t, before, record)
	assert.Contains(t, first, "Key Topics Discussed: Family")
}

func TestIntensityBands(t *testing.T) {
	assert.Equal(t, "Neutral", Intensity("neutral", 0.9))
	assert.Equal(t, "Low", Intensity("joy", 0.33))
	assert.Equal(t, "Medium", Intensity("joy", 0.34))
	assert.Equal(t, "Medium", Intensity("joy", 0.66))
	assert.Equal(t, "High", Intensity("joy", 0.67))
}
