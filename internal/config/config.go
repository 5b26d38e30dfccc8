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

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	LLM    LLMConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Store: store, LLM: llm}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string
	Path    string
}

func loadStoreConfig() (StoreConfig, error) {
	backend := getEnvOrDefault("STORE_BACKEND", "memory")
	path := strings.TrimSpace(os.Getenv("STORE_PATH"))
	if path == "" {
		switch backend {
		case "snapshot":
			path = "data/conversations.json"
		case "sqlite":
			path = "data/parley.db"
		}
	}
	return StoreConfig{Backend: backend, Path: path}, nil
}

// LLMConfig describes the completion provider.
type LLMConfig struct {
	Provider     string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HistoryLimit int
	MaxTokens    *int
	Temperature  *float64

	// ark credentials
	ArkAPIKey  string
	ArkBaseURL string
	ArkRegion  string

	// openai-compatible credentials
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func loadLLMConfig() (LLMConfig, error) {
	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	timeout := 60 * time.Second
	if raw := strings.TrimSpace(os.Getenv("LLM_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return LLMConfig{}, fmt.Errorf("invalid LLM_TIMEOUT value %q: %w", raw, err)
		}
		timeout = parsed
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("LLM_HISTORY_LIMIT"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	return LLMConfig{
		Provider:      getEnvOrDefault("LLM_PROVIDER", "echo"),
		Model:         strings.TrimSpace(os.Getenv("LLM_MODEL")),
		SystemPrompt:  getEnvOrDefault("LLM_SYSTEM_PROMPT", "You are a helpful assistant."),
		Timeout:       timeout,
		HistoryLimit:  historyLimit,
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}, nil
}

// NewArkChatModel builds the ark chat model used by the ark provider.
func (c LLMConfig) NewArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.ArkAPIKey == "" || c.Model == "" {
		return nil, fmt.Errorf("ark provider requires ARK_API_KEY and LLM_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
