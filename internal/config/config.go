// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Persistence
	DataFile  string // Path to the durable snapshot document
	TiersFile string // Optional tier catalog JSON (built-in catalog if unset)

	// Chat platform gateway
	PlatformAPIURL    string
	PlatformToken     string
	OperatorPrincipal string // The service's own member ID on the platform
	ProofChannelRef   string // Channel for completion proof notices (optional)

	// Ticket lifecycle
	CloseGraceDelay time.Duration // Delay between close and channel deletion

	// Limits & observability
	RateLimitRPM int
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultDataFile   = "brokerdesk_data.json"
	DefaultCloseGrace = 5 * time.Second
	DefaultRateLimit  = 60
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DataFile:          getEnv("DATA_FILE", DefaultDataFile),
		TiersFile:         os.Getenv("TIERS_FILE"),
		PlatformAPIURL:    os.Getenv("PLATFORM_API_URL"),
		PlatformToken:     os.Getenv("PLATFORM_TOKEN"),
		OperatorPrincipal: os.Getenv("OPERATOR_PRINCIPAL"),
		ProofChannelRef:   os.Getenv("PROOF_CHANNEL_REF"),
		CloseGraceDelay:   getEnvDuration("CLOSE_GRACE_DELAY", DefaultCloseGrace),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PlatformAPIURL == "" {
		return fmt.Errorf("PLATFORM_API_URL is required")
	}
	if c.PlatformToken == "" {
		return fmt.Errorf("PLATFORM_TOKEN is required")
	}
	if c.OperatorPrincipal == "" {
		return fmt.Errorf("OPERATOR_PRINCIPAL is required")
	}
	if c.CloseGraceDelay < 0 {
		return fmt.Errorf("CLOSE_GRACE_DELAY must not be negative")
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
