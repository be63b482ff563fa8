package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration
	MaxBodyBytes    int64
	LogLevel        string

	// Redis (optional memory-layer backing; see memory package)
	RedisURL string

	// Rate limiting (C1)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Policy engine (C7)
	TokenThreshold int

	// Memory layer (C4)
	MemoryTopK int

	// Cost accounting (C12)
	CostPer1kInput  float64
	CostPer1kOutput float64

	// Provider credentials / endpoints (C8)
	OpenAIAPIKey  string
	OpenAIModel   string
	GroqAPIKey    string
	GroqModel     string
	MistralAPIKey string
	MistralModel  string
	MistralBaseURL string

	OpenRouterAPIKey    string
	OpenRouterModel     string
	OpenRouterBaseURL   string
	OpenRouterSiteURL   string
	OpenRouterAppName   string

	OllamaBaseURL string
	LocalModel    string

	// NER model for PII guard (C3); empty means regex-only
	SpacyModel string

	// External policy/audit collaborator
	DataHavenServiceURL string
	DataHavenTimeout    time.Duration
}

// Load reads configuration from environment variables and an optional
// .env file in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)

	return &Config{
		Addr:            getEnv("GATEWAY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		MaxBodyBytes:    int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		RedisURL: getEnv("REDIS_URL", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,

		TokenThreshold: getEnvInt("TOKEN_THRESHOLD", 500),
		MemoryTopK:     getEnvInt("MEMORY_TOP_K", 3),

		CostPer1kInput:  getEnvFloat("COST_PER_1K_INPUT", 0.0005),
		CostPer1kOutput: getEnvFloat("COST_PER_1K_OUTPUT", 0.0015),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GroqAPIKey: getEnv("GROQ_API_KEY", ""),
		GroqModel:  getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),

		MistralAPIKey:  getEnv("MISTRAL_API_KEY", ""),
		MistralModel:   getEnv("MISTRAL_MODEL", "mistral-small-latest"),
		MistralBaseURL: getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "meta-llama/llama-3.3-70b-instruct"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterSiteURL: getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName: getEnv("OPENROUTER_APP_NAME", "optigate"),

		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LocalModel:    getEnv("LOCAL_MODEL", "llama3.2"),

		SpacyModel: getEnv("SPACY_MODEL", ""),

		DataHavenServiceURL: getEnv("DATAHAVEN_SERVICE_URL", ""),
		DataHavenTimeout:    time.Duration(getEnvInt("DATAHAVEN_TIMEOUT", 5)) * time.Second,
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
