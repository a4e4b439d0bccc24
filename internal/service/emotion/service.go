package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/zhouzirui/sahayak/backend/internal/analysis/emotion"
	crisisanalysis "github.com/zhouzirui/sahayak/backend/internal/analysis/crisis"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// Config 控制情绪追踪服务的行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
	MaxTracked   int
	Logger       *zap.SugaredLogger
	Now          func() time.Time
}

// Detection is the per-message emotion capture.
type Detection struct {
	Emotions chat.EmotionScores
	Dominant string
	Crisis   chat.CrisisInfo
	Source   string
}

// HistoryEntry is one tracked detection for a user.
type HistoryEntry struct {
	Emotions  chat.EmotionScores
	Dominant  string
	Timestamp time.Time
}

// Summary aggregates a user's tracked emotions.
type Summary struct {
	// Averages keeps labels in first-seen order.
	Averages      chat.EmotionScores
	Dominant      string
	Trend         string
	TotalAnalyzed int
}

// Empty reports whether no emotion data was available.
func (s Summary) Empty() bool {
	return s.TotalAnalyzed == 0
}

// Percentages renders the averages as "12.5%" strings in order.
func (s Summary) Percentages() []string {
	out := make([]string, 0, len(s.Averages))
	for _, item := range s.Averages {
		out = append(out, fmt.Sprintf("%.1f%%", item.Score*100))
	}
	return out
}

// Tracker detects emotions per message and keeps a per-user history. A model
// classifier is used when enabled, with the keyword analyzer as fallback.
type Tracker struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	maxTracked   int
	logger       *zap.SugaredLogger
	now          func() time.Time

	mu      sync.RWMutex
	history map[string][]HistoryEntry
}

// NewTracker creates the tracker. chatModel may be nil, in which case only the
// heuristic analyzer runs.
func NewTracker(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Tracker, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	maxTracked := cfg.MaxTracked
	if maxTracked <= 0 {
		maxTracked = 200
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	t := &Tracker{
		enabled:      cfg.Enabled && chatModel != nil,
		historyLimit: historyLimit,
		maxTracked:   maxTracked,
		logger:       logging.OrNop(cfg.Logger),
		now:          now,
		history:      make(map[string][]HistoryEntry),
	}

	if !t.enabled {
		return t, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(emotionSystemPrompt),
		schema.UserMessage(emotionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	t.classifier = runnable
	return t, nil
}

// Enabled 返回模型分类器是否启用。
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled && t.classifier != nil
}

// Detect classifies text without touching the user's history. Callers add
// the result with Record once the message is stored. Classification never
// fails; model errors fall back to keywords.
func (t *Tracker) Detect(ctx context.Context, text, userID string) (Detection, error) {
	detection := t.classify(ctx, text, userID)
	detection.Crisis = crisisanalysis.Assess(text)
	return detection, nil
}

// Record appends a detection to the user's history.
func (t *Tracker) Record(userID string, detection Detection) {
	t.record(userID, HistoryEntry{
		Emotions:  detection.Emotions.Clone(),
		Dominant:  detection.Dominant,
		Timestamp: t.now().UTC(),
	})
}

// History returns a copy of the user's tracked detections, oldest first.
func (t *Tracker) History(userID string) []HistoryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.history[userID]
	out := make([]HistoryEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry
		out[i].Emotions = entry.Emotions.Clone()
	}
	return out
}

// Restore seeds a user's history from persisted user messages. It is a no-op
// when the user already has tracked entries in this process.
func (t *Tracker) Restore(userID string, messages []chat.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history[userID]) > 0 {
		return 0
	}

	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		if !msg.IsUser() || len(msg.Emotions) == 0 {
			continue
		}
		ts, _ := chat.ParseTimestamp(msg.Timestamp)
		entries = append(entries, HistoryEntry{
			Emotions:  msg.Emotions.Clone(),
			Dominant:  msg.DominantEmotion,
			Timestamp: ts,
		})
	}
	if len(entries) > t.maxTracked {
		entries = entries[len(entries)-t.maxTracked:]
	}
	if len(entries) > 0 {
		t.history[userID] = entries
	}
	return len(entries)
}

// Summary averages every tracked score per label. Labels keep the order in
// which they first appeared, and the earliest label wins a tie for dominant.
func (t *Tracker) Summary(userID string) Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.history[userID]
	if len(entries) == 0 {
		return Summary{}
	}

	totals := chat.EmotionScores{}
	index := make(map[string]int)
	for _, entry := range entries {
		for _, item := range entry.Emotions {
			pos, ok := index[item.Label]
			if !ok {
				pos = len(totals)
				index[item.Label] = pos
				totals = append(totals, chat.EmotionScore{Label: item.Label})
			}
			totals[pos].Score += item.Score
		}
	}

	for i := range totals {
		totals[i].Score /= float64(len(entries))
	}

	dominant, ok := totals.Dominant()
	if !ok {
		dominant = string(analysis.Neutral)
	}

	return Summary{
		Averages:      totals,
		Dominant:      dominant,
		TotalAnalyzed: len(entries),
	}
}

func (t *Tracker) record(userID string, entry HistoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.history[userID], entry)
	if len(entries) > t.maxTracked {
		entries = entries[len(entries)-t.maxTracked:]
	}
	t.history[userID] = entries
}

func (t *Tracker) classify(ctx context.Context, text, userID string) Detection {
	if !t.Enabled() {
		return heuristicDetection(text)
	}

	input := map[string]any{
		"recent_emotions": t.recentDominant(userID),
		"user_message":    strings.TrimSpace(text),
	}

	msg, err := t.classifier.Invoke(ctx, input)
	if err != nil {
		t.logger.Warnw("[emotion] classifier invoke failed, use fallback", "user", userID, "error", err)
		return heuristicDetection(text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return heuristicDetection(text)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		t.logger.Warnw("[emotion] classifier output parse failed, use fallback", "user", userID, "error", err)
		return heuristicDetection(text)
	}

	scores, ok := normalizeModelScores(result.Emotions)
	if !ok {
		return heuristicDetection(text)
	}

	dominant, _ := scores.Dominant()
	return Detection{Emotions: scores, Dominant: dominant, Source: "llm"}
}

func (t *Tracker) recentDominant(userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.history[userID]
	if len(entries) == 0 {
		return "none"
	}
	start := len(entries) - t.historyLimit
	if start < 0 {
		start = 0
	}
	labels := make([]string, 0, len(entries)-start)
	for _, entry := range entries[start:] {
		labels = append(labels, entry.Dominant)
	}
	return strings.Join(labels, ", ")
}

func heuristicDetection(text string) Detection {
	decision := analysis.Analyze(text)
	return Detection{
		Emotions: decision.Scores,
		Dominant: string(decision.Dominant),
		Source:   "heuristic",
	}
}

// normalizeModelScores maps model labels onto the vocabulary, orders them
// canonically and rescales them to sum to 1.
func normalizeModelScores(raw chat.EmotionScores) (chat.EmotionScores, bool) {
	weights := make(map[analysis.Label]float64, len(analysis.Vocabulary))
	total := 0.0
	for _, item := range raw {
		label, ok := analysis.Parse(item.Label)
		if !ok || item.Score <= 0 {
			continue
		}
		weights[label] += item.Score
		total += item.Score
	}
	if total <= 0 {
		return nil, false
	}

	scores := make(chat.EmotionScores, 0, len(analysis.Vocabulary))
	for _, label := range analysis.Vocabulary {
		scores = append(scores, chat.EmotionScore{Label: string(label), Score: weights[label] / total})
	}
	return scores, true
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type classifierPayload struct {
	Emotions chat.EmotionScores `json:"emotions"`
}

const emotionSystemPrompt = "You are an emotion analyst for a student wellbeing counselor. Read the user's latest message and estimate how strongly each emotion is present.\nReturn only one JSON object with a single key \"emotions\" that maps each of anger, disgust, fear, joy, neutral, sadness and surprise to a score between 0 and 1. Do not output any other text."

const emotionUserPrompt = "Recently observed emotions: {recent_emotions}\n\nLatest message:\n{user_message}"
