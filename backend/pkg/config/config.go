package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // TRANSCRIPT_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	apperrors "mimic-ai/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Topic extraction (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	ModelID    string

	// Ingestion
	TopicMinMessages   int // non-media messages required before topics are extracted
	TopicMaxTopics     int
	TopicMatchKeywords int // top-k keywords tested against each message body
	MaxUploadSizeMB    int
	TranscriptTimezone string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		Neo4jURI:           getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:          getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:      getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:      getEnv("NEO4J_DATABASE", ""),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		ModelID:            getEnv("MODEL_ID", "anthropic/claude-3.5-sonnet"),
		TopicMinMessages:   getEnvInt("TOPIC_MIN_MESSAGES", 5),
		TopicMaxTopics:     getEnvInt("TOPIC_MAX_TOPICS", 10),
		TopicMatchKeywords: getEnvInt("TOPIC_MATCH_KEYWORDS", 3),
		MaxUploadSizeMB:    getEnvInt("MAX_UPLOAD_SIZE_MB", 50),
		TranscriptTimezone: getEnv("TRANSCRIPT_TIMEZONE", "UTC"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	if c.TopicMinMessages < 1 {
		return apperrors.NewConfigValidationFailed("TOPIC_MIN_MESSAGES", "must be at least 1")
	}
	if c.TopicMatchKeywords < 1 {
		return apperrors.NewConfigValidationFailed("TOPIC_MATCH_KEYWORDS", "must be at least 1")
	}
	if c.MaxUploadSizeMB < 1 {
		return apperrors.NewConfigValidationFailed("MAX_UPLOAD_SIZE_MB", "must be at least 1")
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return apperrors.NewConfigValidationFailed("TRANSCRIPT_TIMEZONE", err.Error())
	}
	// The LLM key is optional; without it topics come from the frequency extractor
	return nil
}

// Location returns the timezone transcript timestamps are interpreted in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

// LLMEnabled reports whether an LLM topic extractor can be configured.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != "" && c.LLMBaseURL != "" && c.ModelID != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
