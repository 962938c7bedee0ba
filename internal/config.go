package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Public base URL of this site (for absolute links and cookie security)
	BaseURL string

	// Movie API
	APIBaseURL        string
	APITimeout        time.Duration
	APIRateLimit      float64 // requests per second, 0 disables throttling
	APIRateBurst      int
	APIBreakerTimeout time.Duration

	// Images are proxied from this host
	ImageBaseURL string

	// Query cache
	CacheTTL time.Duration

	// Pagination and search
	PaginationWindow int
	SearchPageSize   int

	// Sessions
	SessionStore    string // "memory" or "postgres"
	SessionSecret   string // hex-encoded 32-byte key for sealing API tokens
	SessionDuration time.Duration
	DatabaseUrl     string // required when SessionStore is "postgres"

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Worker Configuration
	WorkerEnabled      bool
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// Auth form rate limiting
	AuthRateLimit  int           // attempts per window per IP
	AuthRateWindow time.Duration // window length

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	u, err := url.Parse(c.BaseURL)
	return err == nil && u.Scheme == "https"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		APIBaseURL:        getEnv("API_BASE_URL", ""),
		APITimeout:        getEnvDuration("API_TIMEOUT", 10*time.Second),
		APIRateLimit:      getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:      getEnvInt("API_RATE_BURST", 40),
		APIBreakerTimeout: getEnvDuration("API_BREAKER_TIMEOUT", 30*time.Second),

		ImageBaseURL: getEnv("IMAGE_BASE_URL", "https://image.tmdb.org/t/p"),

		CacheTTL: getEnvDuration("CACHE_TTL", 2*time.Minute),

		PaginationWindow: getEnvInt("PAGINATION_WINDOW", 3),
		SearchPageSize:   getEnvInt("SEARCH_PAGE_SIZE", 20),

		SessionStore:    getEnv("SESSION_STORE", "memory"),
		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),
		DatabaseUrl:     getEnv("DATABASE_URL", ""),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", time.Minute),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	if cfg.PaginationWindow < 1 {
		return nil, fmt.Errorf("PAGINATION_WINDOW must be at least 1, got: %d", cfg.PaginationWindow)
	}
	if cfg.SearchPageSize < 1 || cfg.SearchPageSize > 100 {
		return nil, fmt.Errorf("SEARCH_PAGE_SIZE must be between 1 and 100, got: %d", cfg.SearchPageSize)
	}

	// Validate session configuration
	switch cfg.SessionStore {
	case "memory":
	case "postgres":
		if cfg.DatabaseUrl == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when SESSION_STORE is 'postgres'")
		}
	default:
		return nil, fmt.Errorf("SESSION_STORE must be either 'memory' or 'postgres', got: %s", cfg.SessionStore)
	}
	if cfg.SessionSecret == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("SESSION_SECRET is required outside development")
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
