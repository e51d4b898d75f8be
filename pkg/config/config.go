// Package config loads process configuration from the environment, with
// optional .env support for local development.
package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingEncryptionKey = errors.New("TOKEN_ENCRYPTION_KEY must be a base64url 32-byte key")

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string
	APIAddr  string

	// Database
	DatabaseURL   string
	DBPoolSize    int
	DBMaxOverflow int
	DBPoolTimeout time.Duration

	// Redis / RabbitMQ (optional; local fallbacks used when unreachable)
	RedisURL    string
	RabbitMQURL string

	// Auth
	JWTSecretKey    string
	JWTAlgorithm    string
	JWTExpiration   time.Duration
	TokenEncryption string
	ShortcutPepper  string

	// Google Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleCalendarID   string

	// Inference
	OpenAIAPIKey string

	// Scheduling
	ScheduleHorizonDays int
	ReconcileInterval   time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		APIAddr:  getEnv("API_ADDR", "0.0.0.0:8080"),

		DatabaseURL:   getEnv("DATABASE_URL", "sqlite://qzwhatnext.db"),
		DBPoolSize:    getIntEnv("DB_POOL_SIZE", 5),
		DBMaxOverflow: getIntEnv("DB_MAX_OVERFLOW", 10),
		DBPoolTimeout: time.Duration(getIntEnv("DB_POOL_TIMEOUT_SEC", 30)) * time.Second,

		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		JWTSecretKey:    getEnv("JWT_SECRET_KEY", ""),
		JWTAlgorithm:    getEnv("JWT_ALGORITHM", "HS256"),
		JWTExpiration:   time.Duration(getIntEnv("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
		TokenEncryption: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		ShortcutPepper:  getEnv("SHORTCUT_TOKEN_PEPPER", ""),

		GoogleClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_OAUTH_REDIRECT_URL", ""),
		GoogleCalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		ScheduleHorizonDays: getIntEnv("SCHEDULE_HORIZON_DAYS", 7),
		ReconcileInterval:   getDurationEnv("RECONCILE_INTERVAL", 15*time.Minute),
	}

	if cfg.TokenEncryption != "" {
		if err := validateEncryptionKey(cfg.TokenEncryption); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Horizon returns the scheduling horizon as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.ScheduleHorizonDays) * 24 * time.Hour
}

// UsesPostgres reports whether DATABASE_URL points at a networked database.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// SQLitePath strips the scheme off an embedded-database DSN.
func (c *Config) SQLitePath() string {
	path := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	if path == "" {
		path = "qzwhatnext.db"
	}
	return path
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func validateEncryptionKey(key string) error {
	decoded, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(key)
	}
	if err != nil || len(decoded) != 32 {
		return ErrMissingEncryptionKey
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
