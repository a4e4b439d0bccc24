// Package app assembles the service graph from configuration. Both the API
// server and the terminal tool build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/handler"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/persona"
	"github.com/zhouzirui/sahayak/backend/internal/observability"
	"github.com/zhouzirui/sahayak/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/sahayak/backend/internal/service/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/chatcontext"
	"github.com/zhouzirui/sahayak/backend/internal/service/crisis"
	"github.com/zhouzirui/sahayak/backend/internal/service/emotion"
	"github.com/zhouzirui/sahayak/backend/internal/service/escalation"
	"github.com/zhouzirui/sahayak/backend/internal/service/topic"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
	"github.com/zhouzirui/sahayak/backend/internal/store"
)

// ErrGenerationUnavailable is returned by the placeholder gateway used when
// no model credentials are configured. Turns then reply with the fallback text.
var ErrGenerationUnavailable = errors.New("generation model is not configured")

// App holds the assembled services.
type App struct {
	Config   *config.Config
	Personas persona.Store
	Persona  persona.Persona
	Store    store.SessionStore
	Tracker  *emotion.Tracker
	Crisis   *crisis.Classifier
	Turns    *turn.Orchestrator
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	logger *zap.SugaredLogger
}

// Options overrides parts of the graph, mainly for tests.
type Options struct {
	// ChatModel replaces the Ark model built from cfg.AI.
	ChatModel model.ChatModel
	// Store replaces the backend built from cfg.Store.
	Store store.SessionStore
}

// New builds every service. The returned App owns the store and must be
// closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger = logging.OrNop(logger)

	personas := persona.NewMemoryStore(persona.Seed())
	current, ok := persona.Resolve(personas, persona.DefaultID)
	if !ok {
		return nil, errors.New("app: no persona available")
	}

	chatModel := opts.ChatModel
	if chatModel == nil && cfg.AI.Enabled() && cfg.AI.Provider == config.ProviderArk {
		m, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			logger.Warnw("[app] failed to initialize ark model, continuing without it", "error", err)
		} else {
			chatModel = m
			logger.Infow("[app] ark chat model initialized", "model", cfg.AI.Model)
		}
	}

	tracker, err := emotion.NewTracker(ctx, chatModel, emotion.Config{
		Enabled:      cfg.Emotion.LLMEnabled,
		HistoryLimit: cfg.Emotion.HistoryLimit,
		MaxTracked:   cfg.Emotion.MaxTracked,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: emotion tracker: %w", err)
	}
	if tracker.Enabled() {
		logger.Infow("[app] emotion classifier enabled")
	} else if cfg.Emotion.LLMEnabled {
		logger.Infow("[app] emotion classifier requested but chat model unavailable, using heuristics")
	}

	classifier, err := crisis.NewClassifier(ctx, chatModel, crisis.Config{
		Enabled: cfg.Crisis.LLMEnabled,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: crisis classifier: %w", err)
	}

	gateway, err := newGateway(ctx, cfg.AI, chatModel, current, logger)
	if err != nil {
		return nil, fmt.Errorf("app: generation gateway: %w", err)
	}

	sessions := opts.Store
	if sessions == nil {
		sessions, err = store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("app: store: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	builder := chatcontext.NewBuilder(tracker, topic.NewExtractor(), chatcontext.Options{
		Location:      cfg.Turn.Location,
		AssistantName: current.Name,
	})

	turns, err := turn.New(turn.Dependencies{
		Store:     sessions,
		Emotions:  tracker,
		Crisis:    classifier,
		Context:   builder,
		Generator: gateway,
		Handles:   chatservice.NewService(),
		Policy:    escalation.NewPolicy(),
		Metrics:   metrics,
	}, turn.Options{
		FailurePolicy:     cfg.Crisis.FailurePolicy,
		GenerationTimeout: cfg.Turn.GenerationTimeout,
		Logger:            logger,
	})
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("app: turn orchestrator: %w", err)
	}

	return &App{
		Config:   cfg,
		Personas: personas,
		Persona:  current,
		Store:    sessions,
		Tracker:  tracker,
		Crisis:   classifier,
		Turns:    turns,
		Metrics:  metrics,
		Registry: registry,
		logger:   logger,
	}, nil
}

// Router returns the HTTP handler for the API server.
func (a *App) Router() http.Handler {
	return handler.NewRouter(a.Personas, a.Turns, a.Metrics, a.logger)
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func newGateway(ctx context.Context, cfg config.AIConfig, chatModel model.ChatModel, p persona.Persona, logger *zap.SugaredLogger) (turn.GenerationGateway, error) {
	if cfg.Provider == config.ProviderOpenAI && cfg.Enabled() {
		llm, err := ai.NewOpenAIModel(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		logger.Infow("[app] openai generation enabled", "model", cfg.OpenAIModel)
		return ai.NewLangchainService(llm, p, ai.OpenAIConfig{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, ai.Options{Logger: logger})
	}

	if chatModel == nil {
		logger.Warnw("[app] no generation model configured, replies will use the fallback text")
		return unavailableGateway{}, nil
	}
	return ai.NewService(ctx, chatModel, p, ai.Options{Logger: logger})
}

type unavailableGateway struct{}

func (unavailableGateway) Generate(context.Context, []*schema.Message, string) (string, error) {
	return "", ErrGenerationUnavailable
}
