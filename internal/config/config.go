// Package config provides configuration loading for the orchestrator service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the orchestrator service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// State store configuration
	StateStoreType   string // "memory" or "redis"
	RedisURL         string
	StateStorePrefix string

	// Oracle providers
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	DefaultProvider  string
	DefaultModel     string
	MaxTokens        int

	// Sequential engine
	StepTimeout      time.Duration
	ConditionTimeout time.Duration
	MaxRetries       int
	RetryDelay       time.Duration

	// Router and agent steps treat targets under this prefix as local mock
	// services and call them directly.
	MockBaseURL string

	// Notifications
	WebhookURL string

	// CORS configuration
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7070"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 10*time.Minute), // workflow runs are long
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// State store
		StateStoreType:   getEnv("ORCH_STATESTORE", "memory"), // "memory" or "redis"
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		StateStorePrefix: getEnv("STATESTORE_PREFIX", "orchestrator"),

		// Oracle
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		DefaultProvider:  getEnv("ORCH_DEFAULT_PROVIDER", "anthropic"),
		DefaultModel:     getEnv("ORCH_DEFAULT_MODEL", ""),
		MaxTokens:        getInt("ORCH_MAX_TOKENS", 4096),

		// Sequential engine
		StepTimeout:      getDuration("ORCH_STEP_TIMEOUT", 5*time.Minute),
		ConditionTimeout: getDuration("ORCH_CONDITION_TIMEOUT", 2*time.Minute),
		MaxRetries:       getInt("ORCH_MAX_RETRIES", 3),
		RetryDelay:       getDuration("ORCH_RETRY_DELAY", time.Second),

		MockBaseURL: getEnv("ORCH_MOCK_BASE_URL", ""),

		// Notifications
		WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
