package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/persona"
)

// DefaultHistoryLimit caps how many prior messages are sent with each request.
const DefaultHistoryLimit = 40

var (
	ErrModelRequired = errors.New("chat model is required")
	ErrEmptyReply    = errors.New("model returned an empty reply")
)

// Options tunes a gateway.
type Options struct {
	HistoryLimit int
	Logger       *zap.SugaredLogger
}

// Service is the generation gateway backed by an eino chain: system prompt,
// prior turns, then the context-augmented user input.
type Service struct {
	persona      persona.Persona
	system       string
	historyLimit int
	logger       *zap.SugaredLogger
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the generation chain for the given persona.
func NewService(ctx context.Context, chatModel model.ChatModel, p persona.Persona, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, ErrModelRequired
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		persona:      p,
		system:       NewPersonaPromptManager().BuildSystemPrompt(p),
		historyLimit: historyLimit(opts.HistoryLimit),
		logger:       logging.OrNop(opts.Logger),
		chain:        runnable,
	}, nil
}

// Generate runs one request. history holds the prior user and assistant
// turns; input is the current user message with its context block.
func (s *Service) Generate(ctx context.Context, history []*schema.Message, input string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  s.system,
		"history": trimHistory(history, s.historyLimit),
		"query":   input,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyReply
	}

	s.logger.Debugw("[ai] generated response", "persona", s.persona.ID, "history", len(history), "length", len(response.Content))
	return response.Content, nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// trimHistory keeps the newest limit messages and drops anything that is not
// a user or assistant turn.
func trimHistory(messages []*schema.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.User, schema.Assistant:
			history = append(history, msg)
		}
	}
	return history
}
