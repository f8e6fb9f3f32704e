// Package config loads process configuration from the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs, resolved once at startup.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	JWTSecret     string
	EncryptionKey string // 64 hex chars, 32-byte AES key
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SweepInterval time.Duration

	StravaClientID     string
	StravaClientSecret string
	StravaAPIURL       string
}

// IsProduction reports whether the process runs with production hardening
// (secure cookies, strict same-site, no error detail in responses).
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// Load reads the environment (plus a local .env file when present) and
// validates required keys. Key-material problems are reported here so
// the process fails at startup rather than per request.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		StravaClientID:     getEnv("STRAVA_CLIENT_ID", ""),
		StravaClientSecret: getEnv("STRAVA_CLIENT_SECRET", ""),
		StravaAPIURL:       getEnv("STRAVA_API_URL", "https://www.strava.com"),
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		SweepInterval:      time.Hour,
	}

	if v := getEnv("ACCESS_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ACCESS_TTL: %w", err)
		}
		cfg.AccessTTL = d
	}
	if v := getEnv("REFRESH_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("REFRESH_TTL: %w", err)
		}
		cfg.RefreshTTL = d
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StravaClientID == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_ID is required")
	}
	if cfg.StravaClientSecret == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_SECRET is required")
	}

	keyBytes, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
