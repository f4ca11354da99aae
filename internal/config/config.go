// Package config provides configuration management for cardex.
// It loads settings from environment variables with the CARDEX_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the cardex application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Catalog   CatalogConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port      int     // Server port (default: 7171)
	Host      string  // Server host (default: 127.0.0.1)
	RateLimit float64 // Requests per second per client (default: 25)
	RateBurst int     // Burst size for the rate limiter (default: 50)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine   string // Storage engine: sqlite, postgres (default: sqlite)
	DSN      string // PostgreSQL connection string (required when Engine is postgres)
	DataPath string // Path to the data directory for SQLite (default: ./data)
}

// EmbeddingConfig contains embedding gateway configuration.
type EmbeddingConfig struct {
	Provider       string // Embedding provider: ollama (default: ollama)
	OllamaURL      string // Ollama API URL (default: http://localhost:11434)
	Model          string // Embedding model name (default: nomic-embed-text)
	TimeoutSeconds int    // Per-request timeout (default: 10)
	CacheSize      int    // LRU text-embedding cache entries (default: 4096)
	MaxRetries     int    // Retries on transient failure (default: 2)
}

// SearchConfig contains query pipeline tuning.
type SearchConfig struct {
	DefaultThreshold float64 // Default minimum boosted score (default: 0.50)
	MatchFloor       float64 // Rule matching similarity floor (default: 0.70)
	BatchWorkers     int     // Batch classifier worker count (default: 4)
}

// CatalogConfig locates the rule catalog seed.
type CatalogConfig struct {
	RulesPath string // YAML seed file path, empty to load from the store
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token, required in production mode
}

// Load reads configuration from environment variables with defaults.
// All environment variables use the CARDEX_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnvInt("CARDEX_PORT", 7171),
			Host:      getEnv("CARDEX_HOST", "127.0.0.1"),
			RateLimit: getEnvFloat("CARDEX_RATE_LIMIT", 25),
			RateBurst: getEnvInt("CARDEX_RATE_BURST", 50),
		},
		Storage: StorageConfig{
			Engine:   getEnv("CARDEX_STORAGE_ENGINE", "sqlite"),
			DSN:      getEnv("CARDEX_POSTGRES_DSN", ""),
			DataPath: getEnv("CARDEX_DATA_PATH", "./data"),
		},
		Embedding: EmbeddingConfig{
			Provider:       getEnv("CARDEX_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL:      getEnv("CARDEX_OLLAMA_URL", "http://localhost:11434"),
			Model:          getEnv("CARDEX_EMBEDDING_MODEL", "nomic-embed-text"),
			TimeoutSeconds: getEnvInt("CARDEX_EMBEDDING_TIMEOUT", 10),
			CacheSize:      getEnvInt("CARDEX_EMBEDDING_CACHE_SIZE", 4096),
			MaxRetries:     getEnvInt("CARDEX_EMBEDDING_MAX_RETRIES", 2),
		},
		Search: SearchConfig{
			DefaultThreshold: getEnvFloat("CARDEX_DEFAULT_THRESHOLD", 0.50),
			MatchFloor:       getEnvFloat("CARDEX_MATCH_FLOOR", 0.70),
			BatchWorkers:     getEnvInt("CARDEX_BATCH_WORKERS", 4),
		},
		Catalog: CatalogConfig{
			RulesPath: getEnv("CARDEX_RULES_PATH", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("CARDEX_SECURITY_MODE", "development"),
			APIToken:     getEnv("CARDEX_API_TOKEN", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: CARDEX_POSTGRES_DSN is required with the postgres engine")
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("config: default threshold %v out of [0,1]", c.Search.DefaultThreshold)
	}
	if c.Search.MatchFloor <= 0 || c.Search.MatchFloor > 1 {
		return fmt.Errorf("config: match floor %v out of (0,1]", c.Search.MatchFloor)
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: CARDEX_API_TOKEN is required in production mode")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
