package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	lcschema "github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/persona"
)

// OpenAIConfig describes an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
	MaxTokens   *int
}

// LangchainService is a generation gateway over any langchaingo llms.Model.
type LangchainService struct {
	llm          llms.Model
	persona      persona.Persona
	system       string
	historyLimit int
	options      []llms.CallOption
	logger       *zap.SugaredLogger
}

// NewOpenAIModel creates an OpenAI-compatible langchaingo client.
func NewOpenAIModel(cfg OpenAIConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return client, nil
}

// NewLangchainService wraps llm with the persona prompt.
func NewLangchainService(llm llms.Model, p persona.Persona, cfg OpenAIConfig, opts Options) (*LangchainService, error) {
	if llm == nil {
		return nil, ErrModelRequired
	}

	var callOptions []llms.CallOption
	if cfg.Temperature != nil {
		callOptions = append(callOptions, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens != nil {
		callOptions = append(callOptions, llms.WithMaxTokens(*cfg.MaxTokens))
	}

	return &LangchainService{
		llm:          llm,
		persona:      p,
		system:       NewPersonaPromptManager().BuildSystemPrompt(p),
		historyLimit: historyLimit(opts.HistoryLimit),
		options:      callOptions,
		logger:       logging.OrNop(opts.Logger),
	}, nil
}

// Generate sends the system prompt, prior turns and input as one request.
func (s *LangchainService) Generate(ctx context.Context, history []*schema.Message, input string) (string, error) {
	trimmed := trimHistory(history, s.historyLimit)

	messages := make([]llms.MessageContent, 0, len(trimmed)+2)
	messages = append(messages, llms.TextParts(lcschema.ChatMessageTypeSystem, s.system))
	for _, msg := range trimmed {
		role := lcschema.ChatMessageTypeHuman
		if msg.Role == schema.Assistant {
			role = lcschema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}
	messages = append(messages, llms.TextParts(lcschema.ChatMessageTypeHuman, input))

	response, err := s.llm.GenerateContent(ctx, messages, s.options...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Content) == "" {
		return "", ErrEmptyReply
	}

	s.logger.Debugw("[ai] generated response", "persona", s.persona.ID, "backend", "langchaingo", "length", len(response.Choices[0].Content))
	return response.Choices[0].Content, nil
}
