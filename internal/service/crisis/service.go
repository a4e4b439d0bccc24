// Package crisis classifies self-harm risk in raw user input.
package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	crisisanalysis "github.com/zhouzirui/sahayak/backend/internal/analysis/crisis"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// Config controls the classifier.
type Config struct {
	Enabled bool
	Logger  *zap.SugaredLogger
}

// Verdict is the classifier output for one utterance.
type Verdict struct {
	IsCrisis     bool
	Level        chat.RiskLevel
	MatchedTerms []string
	Source       string
}

// Info converts the verdict into the capture stored on a message.
func (v Verdict) Info() chat.CrisisInfo {
	return chat.CrisisInfo{IsCrisis: v.IsCrisis, RiskLevel: v.Level, MatchedTerms: v.MatchedTerms}
}

// Classifier combines an optional model judgement with keyword screening.
// The higher of the two risk levels wins.
type Classifier struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	logger     *zap.SugaredLogger
}

// NewClassifier builds the classifier. chatModel may be nil.
func NewClassifier(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Classifier, error) {
	c := &Classifier{
		enabled: cfg.Enabled && chatModel != nil,
		logger:  logging.OrNop(cfg.Logger),
	}
	if !c.enabled {
		return c, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(crisisSystemPrompt),
		schema.UserMessage("{user_message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile crisis classifier chain: %w", err)
	}
	c.classifier = runnable
	return c, nil
}

// Enabled reports whether the model classifier is active.
func (c *Classifier) Enabled() bool {
	return c != nil && c.enabled && c.classifier != nil
}

// Classify returns the risk verdict for text. It only fails when ctx is done.
func (c *Classifier) Classify(ctx context.Context, text string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{Level: chat.RiskNone}, err
	}

	info := crisisanalysis.Assess(text)
	keyword := Verdict{
		IsCrisis:     info.IsCrisis,
		Level:        info.RiskLevel,
		MatchedTerms: info.MatchedTerms,
		Source:       "keywords",
	}
	if !c.Enabled() {
		return keyword, nil
	}

	modelVerdict, err := c.classifyWithModel(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return keyword, ctxErr
		}
		c.logger.Warnw("[crisis] model classification failed, use keywords", "error", err)
		return keyword, nil
	}

	if modelVerdict.Level.Rank() >= keyword.Level.Rank() {
		modelVerdict.MatchedTerms = keyword.MatchedTerms
		return modelVerdict, nil
	}
	return keyword, nil
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string) (Verdict, error) {
	msg, err := c.classifier.Invoke(ctx, map[string]any{"user_message": strings.TrimSpace(text)})
	if err != nil {
		return Verdict{}, err
	}
	if msg == nil {
		return Verdict{}, fmt.Errorf("empty classifier response")
	}

	trimmed := strings.TrimSpace(msg.Content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, fmt.Errorf("missing json object")
	}

	var payload struct {
		RiskLevel string `json:"risk_level"`
		IsCrisis  bool   `json:"is_crisis"`
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return Verdict{}, err
	}

	level, ok := chat.ParseRiskLevel(payload.RiskLevel)
	if !ok {
		return Verdict{}, fmt.Errorf("unknown risk level %q", payload.RiskLevel)
	}
	if payload.IsCrisis {
		level = chat.RiskCrisis
	}
	return Verdict{IsCrisis: level == chat.RiskCrisis, Level: level, Source: "llm"}, nil
}

const crisisSystemPrompt = "You screen messages sent to a student mental health counselor for self-harm and suicide risk.\nAnswer with one JSON object with the keys \"risk_level\" (one of none, medium, crisis) and \"is_crisis\" (true only for crisis). Use crisis for any intent, plan or wish to die or self-harm; medium for hopelessness or being unable to cope without such intent; none otherwise. Output nothing else."
