package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort   string
	JWTSecret    string
	AuthRequired bool
	RedisURL     string
	Logging      LoggingConfig
	Upstream     UpstreamConfig
	Limits       LimitsConfig
}

type UpstreamConfig struct {
	BaseURL      string
	APIKey       string
	ChatModel    string
	VisionModel  string
	SummaryModel string
	SystemPrompt string
	Timeout      time.Duration
}

type LimitsConfig struct {
	MaxUploadBytes    int64
	ExtractRuneLimit  int
	SummaryThreshold  int
	RecentMessageKeep int
	SessionTTL        time.Duration
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

func Load() (*Config, error) {
	chatModel := envOrDefault("LLM_CHAT_MODEL", "gpt-4o-mini")

	cfg := &Config{
		ServerPort:   envOrDefault("PORT", "8080"),
		JWTSecret:    envOrDefault("JWT_SECRET", "dev-secret"),
		AuthRequired: parseBool(envOrDefault("AUTH_REQUIRED", "false"), false),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		Logging: LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
			Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
			ServiceName:  envOrDefault("SERVICE_NAME", "lumora-server"),
		},
		Upstream: UpstreamConfig{
			BaseURL:      strings.TrimRight(envOrDefault("LLM_API_BASE", "https://api.openai.com/v1"), "/"),
			APIKey:       strings.TrimSpace(os.Getenv("LLM_API_KEY")),
			ChatModel:    chatModel,
			VisionModel:  envOrDefault("LLM_VISION_MODEL", chatModel),
			SummaryModel: envOrDefault("LLM_SUMMARY_MODEL", chatModel),
			SystemPrompt: envOrDefault("LLM_SYSTEM_PROMPT", "You are a helpful assistant."),
			Timeout:      parseDuration(envOrDefault("LLM_TIMEOUT", "60s"), 60*time.Second),
		},
		Limits: LimitsConfig{
			MaxUploadBytes:    parseInt64(envOrDefault("MAX_UPLOAD_BYTES", "16777216"), 16<<20),
			ExtractRuneLimit:  parseInt(envOrDefault("EXTRACT_RUNE_LIMIT", "65536"), 65536),
			SummaryThreshold:  parseInt(envOrDefault("HISTORY_SUMMARY_THRESHOLD", "16"), 16),
			RecentMessageKeep: parseInt(envOrDefault("HISTORY_RECENT_KEEP", "6"), 6),
			SessionTTL:        parseDuration(envOrDefault("SESSION_TTL", "0s"), 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("config: LLM_API_BASE must not be empty")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	if c.Limits.ExtractRuneLimit <= 0 {
		return fmt.Errorf("config: EXTRACT_RUNE_LIMIT must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseInt64(value string, fallback int64) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
