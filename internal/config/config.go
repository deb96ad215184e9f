// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings (turn sink; empty URL disables it)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	LLMProvider     string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	ModelTimeout    time.Duration

	// External providers
	TokkoBaseURL      string
	CRMBaseURL        string
	SchedulingBaseURL string
	SearchTimeout     time.Duration
	HistoryTimeout    time.Duration

	// Tenants and sessions
	TenantsFile    string
	SessionIdleTTL time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// writeTimeoutMargin is added on top of the slowest turn when deriving the
// minimum server write timeout.
const writeTimeoutMargin = 15 * time.Second

// Load reads configuration from environment variables. A .env file in the
// working directory, when present, is loaded first without overriding
// variables that are already set. ServerWriteTimeout is raised to
// MinWriteTimeout when configured below it.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		LLMProvider:     getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ModelTimeout:    getDurationEnv("MODEL_TIMEOUT", 60*time.Second),

		// External providers
		TokkoBaseURL:      getEnv("TOKKO_BASE_URL", "https://www.tokkobroker.com/api/v1"),
		CRMBaseURL:        getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"),
		SchedulingBaseURL: getEnv("SCHEDULING_BASE_URL", "https://calendly.com"),
		SearchTimeout:     getDurationEnv("SEARCH_TIMEOUT", 15*time.Second),
		HistoryTimeout:    getDurationEnv("HISTORY_TIMEOUT", 10*time.Second),

		// Tenants and sessions
		TenantsFile:    getEnv("TENANTS_FILE", ""),
		SessionIdleTTL: getDurationEnv("SESSION_IDLE_TTL", 30*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}

	if floor := cfg.MinWriteTimeout(); cfg.ServerWriteTimeout > 0 && cfg.ServerWriteTimeout < floor {
		cfg.ServerWriteTimeout = floor
	}
	return cfg
}

// MinWriteTimeout is the longest a single turn can take to answer: one model
// round-trip, one property search and the follow-up model round-trip.
func (c *Config) MinWriteTimeout() time.Duration {
	return 2*c.ModelTimeout + c.SearchTimeout + writeTimeoutMargin
}

// ModelAPIKey returns the credential for the configured LLM provider.
func (c *Config) ModelAPIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return c.GeminiAPIKey
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
