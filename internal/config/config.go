package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Emotion EmotionConfig
	Crisis  CrisisConfig
	Turn    TurnConfig
	Store   StoreConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	emotion, err := loadEmotionConfig()
	if err != nil {
		return nil, err
	}

	crisis, err := loadCrisisConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Emotion: emotion,
		Crisis:  crisis,
		Turn:    turn,
		Store:   store,
		Log:     log,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Generation providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider      string
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("GENERATION_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid GENERATION_PROVIDER value %q", provider)
	}

	return AIConfig{
		Provider:      provider,
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}, nil
}

// EmotionConfig 描述情绪追踪配置。
type EmotionConfig struct {
	LLMEnabled   bool
	HistoryLimit int
	// MaxTracked caps the per-user emotion history kept in memory.
	MaxTracked int
}

func loadEmotionConfig() (EmotionConfig, error) {
	enabled, err := parseBoolEnv("AI_EMOTION_LLM_ENABLED", false)
	if err != nil {
		return EmotionConfig{}, err
	}

	historyLimit := 6
	if override, err := parseOptionalIntEnv("AI_EMOTION_HISTORY_LIMIT"); err != nil {
		return EmotionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	maxTracked := 200
	if override, err := parseOptionalIntEnv("EMOTION_MAX_TRACKED"); err != nil {
		return EmotionConfig{}, err
	} else if override != nil && *override > 0 {
		maxTracked = *override
	}

	return EmotionConfig{LLMEnabled: enabled, HistoryLimit: historyLimit, MaxTracked: maxTracked}, nil
}

// Crisis classifier failure policies.
const (
	FailOpen   = "open"
	FailClosed = "closed"
)

// CrisisConfig 描述风险识别配置。
type CrisisConfig struct {
	LLMEnabled    bool
	FailurePolicy string
}

func loadCrisisConfig() (CrisisConfig, error) {
	enabled, err := parseBoolEnv("CRISIS_LLM_ENABLED", false)
	if err != nil {
		return CrisisConfig{}, err
	}

	policy := strings.ToLower(getEnvOrDefault("CRISIS_FAILURE_POLICY", FailOpen))
	if policy != FailOpen && policy != FailClosed {
		return CrisisConfig{}, fmt.Errorf("invalid CRISIS_FAILURE_POLICY value %q", policy)
	}

	return CrisisConfig{LLMEnabled: enabled, FailurePolicy: policy}, nil
}

// TurnConfig 描述单轮对话的编排参数。
type TurnConfig struct {
	GenerationTimeout time.Duration
	Location          *time.Location
}

func loadTurnConfig() (TurnConfig, error) {
	timeout, err := parseDurationEnv("TURN_GENERATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return TurnConfig{}, err
	}

	zone := getEnvOrDefault("TURN_CONTEXT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TurnConfig{}, fmt.Errorf("invalid TURN_CONTEXT_TIMEZONE value %q: %w", zone, err)
	}

	return TurnConfig{GenerationTimeout: timeout, Location: loc}, nil
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
)

// StoreConfig 描述会话存储配置。
type StoreConfig struct {
	Backend         string
	Path            string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKeyPrefix  string
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMemory))

	redisDB := 0
	if override, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return StoreConfig{}, err
	} else if override != nil {
		redisDB = *override
	}

	cfg := StoreConfig{
		Backend:         backend,
		Path:            strings.TrimSpace(os.Getenv("STORE_PATH")),
		MongoURI:        strings.TrimSpace(os.Getenv("MONGO_CONNECTION_STRING")),
		MongoDatabase:   getEnvOrDefault("MONGO_DATABASE", "chatbot_db"),
		MongoCollection: getEnvOrDefault("MONGO_COLLECTION", "chat_histories"),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		RedisKeyPrefix:  getEnvOrDefault("REDIS_KEY_PREFIX", "sahayak:user:"),
	}

	switch backend {
	case StoreMemory, StoreRedis:
	case StoreBadger:
		if cfg.Path == "" {
			cfg.Path = "data/badger"
		}
	case StoreSQLite:
		if cfg.Path == "" {
			cfg.Path = "data/sahayak.db"
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return StoreConfig{}, fmt.Errorf("MONGO_CONNECTION_STRING is required for the mongo store")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	return cfg, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level string
	File  string
}

func loadLogConfig() (LogConfig, error) {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
