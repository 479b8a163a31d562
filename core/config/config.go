package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Port    string
	OTel    OTelConfig
	Chat    ChatConfig
	GitLab  GitLabConfig
	LLM     LLMConfig
	Redis   RedisConfig
	EpicDir string
	Session SessionConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// ChatConfig holds credentials for the chat platform (Slack-compatible
// Web API plus signed inbound webhooks).
type ChatConfig struct {
	BotToken      string
	SigningSecret string
	BaseURL       string
}

type GitLabConfig struct {
	Token     string
	BaseURL   string // Optional: for self-hosted instances
	ProjectID int64
}

type LLMConfig struct {
	Provider string // "anthropic" or "openai"
	APIKey   string
	BaseURL  string // Optional: custom API endpoint
	Model    string
}

type RedisConfig struct {
	URL string
}

type SessionConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
	MaxRefinement int
}

// Load loads configuration from environment variables. In development it
// first loads .env via godotenv. Missing required credentials are fatal at
// startup; per-conversation failures never are.
func Load() (Config, error) {
	if getEnv("BOT_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:  getEnv("BOT_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "epic-bot"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Chat: ChatConfig{
			BotToken:      getEnv("SLACK_BOT_TOKEN", ""),
			SigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
			BaseURL:       getEnv("SLACK_BASE_URL", "https://slack.com/api"),
		},
		GitLab: GitLabConfig{
			Token:     getEnv("GITLAB_TOKEN", ""),
			BaseURL:   getEnv("GITLAB_BASE_URL", ""),
			ProjectID: getEnvInt64("GITLAB_PROJECT_ID", 0),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "anthropic"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Model:    getEnv("LLM_MODEL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		EpicDir: getEnv("EPIC_DIR", "./epics"),
		Session: SessionConfig{
			Retention:     getEnvDuration("SESSION_RETENTION", time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			MaxRefinement: getEnvInt("MAX_REFINEMENTS", 2),
		},
	}

	if cfg.Chat.BotToken == "" || cfg.Chat.SigningSecret == "" {
		return Config{}, fmt.Errorf("SLACK_BOT_TOKEN and SLACK_SIGNING_SECRET are required")
	}

	if cfg.GitLab.Token == "" || cfg.GitLab.ProjectID == 0 {
		return Config{}, fmt.Errorf("GITLAB_TOKEN and GITLAB_PROJECT_ID are required")
	}

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("LLM_API_KEY is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
