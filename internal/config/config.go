// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/evac-dialogue/internal/llm"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string
	AllowedOrigins []string
	LogLevel       slog.Level

	CorpusPath   string
	PersonaPath  string
	DialoguePath string
	DBPath       string

	LLM   llm.Config
	Embed EmbedConfig

	HistoryWindow     int
	SessionTTL        time.Duration
	ArchiveRetention  time.Duration // 0 keeps archived turns forever
	RateLimitRequests int
	RateLimitWindow   time.Duration

	ConversationLog ConversationLogConfig
}

// EmbedConfig selects the optional example-ranking embedder.
type EmbedConfig struct {
	Provider string // "none", "ollama" or "gemini"
	Model    string
}

// Enabled reports whether example ranking is configured.
func (e EmbedConfig) Enabled() bool {
	return e.Provider != "" && e.Provider != "none"
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxSizeMB     int
	MaxBackups    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),

		CorpusPath:   getEnv("CORPUS_PATH", "./data/dialogue_data.jsonl"),
		PersonaPath:  getEnv("PERSONA_PATH", "./data/personas.json"),
		DialoguePath: getEnv("DIALOGUE_PATH", "./data/dialogues.json"),
		DBPath:       getEnv("DB_PATH", "./data/evac.db"),

		LLM: llm.Config{
			Provider:    getEnv("LLM_PROVIDER", llm.ProviderOllama),
			Model:       getEnv("LLM_MODEL", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 0),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 0),
		},
		Embed: EmbedConfig{
			Provider: strings.ToLower(getEnv("EMBED_PROVIDER", "none")),
			Model:    getEnv("EMBED_MODEL", ""),
		},

		HistoryWindow:     getEnvInt("HISTORY_WINDOW", 10),
		SessionTTL:        getEnvDuration("SESSION_TTL", 0),
		ArchiveRetention:  getEnvDuration("ARCHIVE_RETENTION", 0),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxSizeMB:     getEnvInt("CONVERSATION_LOG_MAX_SIZE_MB", 100),
			MaxBackups:    getEnvInt("CONVERSATION_LOG_MAX_BACKUPS", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.CorpusPath == "" {
		return fmt.Errorf("CORPUS_PATH cannot be empty")
	}
	if c.PersonaPath == "" {
		return fmt.Errorf("PERSONA_PATH cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOllama, llm.ProviderOpenAI:
	case llm.ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not one of ollama, openai, gemini", c.LLM.Provider)
	}
	switch c.Embed.Provider {
	case "", "none", "ollama", "gemini":
	default:
		return fmt.Errorf("EMBED_PROVIDER %q is not one of none, ollama, gemini", c.Embed.Provider)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL cannot be negative")
	}
	if c.ArchiveRetention < 0 {
		return fmt.Errorf("ARCHIVE_RETENTION cannot be negative")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true when only local origins are allowed.
func (c *Config) IsDevelopment() bool {
	for _, origin := range c.AllowedOrigins {
		if !strings.Contains(origin, "localhost") && !strings.Contains(origin, "127.0.0.1") {
			return false
		}
	}
	return true
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
