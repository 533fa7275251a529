// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Transfer workflow
	RiskBlockThreshold float64
	TransferOTPTTL     time.Duration
	OTPLength          int

	// Risk model adapter
	ModelArtifactPath string // JSON forest export; model absent when empty
	ModelURL          string // Remote scorer, used only when no artifact path is set
	ModelTimeout      time.Duration

	// Bounds on suspension points
	StoreTimeout time.Duration
	LockTimeout  time.Duration

	// Observability
	OTLPEndpoint string

	// HTTP
	CORSOrigins []string
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultSessionTTL     = 2 * time.Hour
	DefaultBlockThreshold = 0.80
	DefaultTransferOTPTTL = 20 * time.Second
	DefaultOTPLength      = 6
	DefaultModelTimeout   = 500 * time.Millisecond
	DefaultStoreTimeout   = 3 * time.Second
	DefaultLockTimeout    = 2 * time.Second

	minJWTSecretLength = 16
	minOTPLength       = 4
	maxOTPLength       = 10
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"), // Required, no default
		SessionTTL:         getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		RiskBlockThreshold: getEnvFloat("RISK_BLOCK_THRESHOLD", DefaultBlockThreshold),
		TransferOTPTTL:     getEnvDuration("TRANSFER_OTP_TTL", DefaultTransferOTPTTL),
		OTPLength:          int(getEnvInt64("OTP_LENGTH", DefaultOTPLength)),
		ModelArtifactPath:  os.Getenv("MODEL_ARTIFACT_PATH"),
		ModelURL:           os.Getenv("MODEL_URL"),
		ModelTimeout:       getEnvDuration("MODEL_TIMEOUT", DefaultModelTimeout),
		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", DefaultStoreTimeout),
		LockTimeout:        getEnvDuration("LOCK_TIMEOUT", DefaultLockTimeout),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	if c.RiskBlockThreshold <= 0 || c.RiskBlockThreshold > 1 {
		return fmt.Errorf("RISK_BLOCK_THRESHOLD must be in (0, 1], got %v", c.RiskBlockThreshold)
	}
	if c.TransferOTPTTL <= 0 {
		return fmt.Errorf("TRANSFER_OTP_TTL must be positive")
	}
	if c.OTPLength < minOTPLength || c.OTPLength > maxOTPLength {
		return fmt.Errorf("OTP_LENGTH must be between %d and %d", minOTPLength, maxOTPLength)
	}
	if c.ModelTimeout <= 0 || c.StoreTimeout <= 0 || c.LockTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT, STORE_TIMEOUT and LOCK_TIMEOUT must be positive")
	}

	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
