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
	// Database
	DatabaseURLOverride string
	DBHost              string
	DBPort              string
	DBUser              string
	DBPassword          string
	DBName              string
	DBSSLMode           string

	// Server
	Port        string
	CORSOrigins []string

	// Request Execution
	RequestTimeout   time.Duration
	MaxRequestSize   int64
	MaxResponseSize  int64
	MaxHeaderCount   int
	MaxRedirects     int
	UserAgent        string
	SubstitutionMode string
	// AgentURL routes outbound requests through a local agent when set.
	AgentURL string

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	// SSRF Protection
	AllowLocalhost  bool
	AllowPrivateIPs bool

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURLOverride: os.Getenv("DATABASE_URL"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "dev"),
		DBPassword:          getEnv("DB_PASSWORD", "localdb"),
		DBName:              getEnv("DB_NAME", "collectionrunner"),
		DBSSLMode:           getEnv("DB_SSLMODE", "disable"),
		Port:                getEnv("PORT", "8080"),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		UserAgent:           getEnv("USER_AGENT", "collection-runner"),
		SubstitutionMode:    getEnv("SUBSTITUTION_MODE", "structural"),
		AgentURL:            os.Getenv("AGENT_URL"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}

	if cfg.SubstitutionMode != "structural" && cfg.SubstitutionMode != "textual" {
		return nil, fmt.Errorf("invalid SUBSTITUTION_MODE: %q (expected structural or textual)", cfg.SubstitutionMode)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q (expected text or json)", cfg.LogFormat)
	}

	// Parse durations and integers
	var err error
	cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	cfg.MaxRequestSize, err = strconv.ParseInt(getEnv("MAX_REQUEST_SIZE", "10485760"), 10, 64) // 10MB
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_REQUEST_SIZE: %w", err)
	}

	cfg.MaxResponseSize, err = strconv.ParseInt(getEnv("MAX_RESPONSE_SIZE", "52428800"), 10, 64) // 50MB
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RESPONSE_SIZE: %w", err)
	}

	cfg.MaxHeaderCount, err = strconv.Atoi(getEnv("MAX_HEADER_COUNT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_HEADER_COUNT: %w", err)
	}

	cfg.MaxRedirects, err = strconv.Atoi(getEnv("MAX_REDIRECTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_REDIRECTS: %w", err)
	}

	cfg.RateLimitRPS, err = strconv.Atoi(getEnv("RATE_LIMIT_RPS", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg.AllowLocalhost, err = strconv.ParseBool(getEnv("ALLOW_LOCALHOST", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOW_LOCALHOST: %w", err)
	}

	cfg.AllowPrivateIPs, err = strconv.ParseBool(getEnv("ALLOW_PRIVATE_IPS", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOW_PRIVATE_IPS: %w", err)
	}

	return cfg, nil
}

// DatabaseURL returns DATABASE_URL when set, otherwise a postgres URL built from DB_*.
// sqlite:// URLs are accepted by db.NewConnection as well.
func (c *Config) DatabaseURL() string {
	if c.DatabaseURLOverride != "" {
		return c.DatabaseURLOverride
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
