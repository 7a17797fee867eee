package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Primary content provider (OpenAI)
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAITimeout time.Duration

	// Secondary content provider (Gemini)
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Generation policy
	ProviderMaxAttempts   int
	ProviderBackoff       time.Duration
	GenerationTemperature float32
	RetryTemperature      float32

	// Media enrichment
	YouTubeAPIKey    string
	QuotaWindow      time.Duration
	SearchLanguage   string
	SearchTimeout    time.Duration
	MediaConcurrency int
	MediaEnrichment  bool

	// Workers
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:    getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:   getEnvOrDefault("JWT_SECRET", ""),

		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAITimeout: getEnvAsDurationOrDefault("OPENAI_TIMEOUT_SECONDS", 120*time.Second),

		GeminiAPIKey:  getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTimeout: getEnvAsDurationOrDefault("GEMINI_TIMEOUT_SECONDS", 120*time.Second),

		ProviderMaxAttempts:   getEnvAsIntOrDefault("PROVIDER_MAX_ATTEMPTS", 2),
		ProviderBackoff:       getEnvAsDurationOrDefault("PROVIDER_BACKOFF_SECONDS", 2*time.Second),
		GenerationTemperature: getEnvAsFloatOrDefault("GENERATION_TEMPERATURE", 0.7),
		RetryTemperature:      getEnvAsFloatOrDefault("RETRY_TEMPERATURE", 0.3),

		YouTubeAPIKey:    getEnvOrDefault("YOUTUBE_API_KEY", ""),
		QuotaWindow:      time.Duration(getEnvAsIntOrDefault("QUOTA_WINDOW_HOURS", 24)) * time.Hour,
		SearchLanguage:   getEnvOrDefault("SEARCH_LANGUAGE", "en"),
		SearchTimeout:    getEnvAsDurationOrDefault("SEARCH_TIMEOUT_SECONDS", 15*time.Second),
		MediaConcurrency: getEnvAsIntOrDefault("MEDIA_CONCURRENCY", 3),
		MediaEnrichment:  getEnvAsBoolOrDefault("MEDIA_ENRICHMENT_ENABLED", true),

		WorkerCount: getEnvAsIntOrDefault("WORKER_COUNT", 3),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// ValidateServer reports the settings only the HTTP server needs. The CLI
// runs without them.
func (c *Config) ValidateServer() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HasContentProvider reports whether at least one generation provider has
// credentials.
func (c *Config) HasContentProvider() bool {
	return c.OpenAIAPIKey != "" || c.GeminiAPIKey != ""
}

func getEnvOrDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float32) float32 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

// getEnvAsDurationOrDefault reads a whole number of seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
