package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	LLMProvider    string
	LLMTimeout     time.Duration
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	OllamaURL      string
	OllamaModel    string
	GeminiKey      string
	GeminiModel    string

	StoreBackend    string
	StoreQuotaBytes int
	Database        string
	RedisAddress    string
	RedisPassword   string
	RedisDB         int

	MaxUploadBytes int64
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		LLMProvider:    getEnv("LLM_PROVIDER", ProviderOpenAI),
		LLMTimeout:     getDuration("LLM_TIMEOUT", 2*time.Minute),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:      getEnv("OLLAMA_SERVER_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3.1"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		StoreBackend:    getEnv("STORE_BACKEND", BackendSQLite),
		StoreQuotaBytes: getInt("STORE_QUOTA_BYTES", 5<<20),
		Database:        getEnv("DATABASE_PATH", "./data/flashdeck.db"),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getInt("REDIS_DB", 0),

		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 20<<20)),
	}
}

// Validate rejects unknown provider and backend names.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.StoreBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreQuotaBytes <= 0 {
		return fmt.Errorf("STORE_QUOTA_BYTES must be positive, got %d", c.StoreQuotaBytes)
	}
	return nil
}

// EnsureDirs creates the parent directory of the sqlite database.
func (c Config) EnsureDirs() error {
	if c.StoreBackend != BackendSQLite {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Database), 0o755); err != nil {
		return fmt.Errorf("ensure database dir %s: %w", c.Database, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
