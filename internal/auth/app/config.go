package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer          string        // issuer claim for tokens (default: stay-auth)
	AccessTokenTTL  time.Duration // access token lifetime (default: 30m)
	RefreshTokenTTL time.Duration // refresh record lifetime (default: 14 days)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // path to SQLite database file (default: ./auth.db)
	DatabaseURL    string // postgres connection string, required for postgres

	SessionStore  string // database, redis or memory (default: database)
	RedisAddr     string // default: localhost:6379
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // key prefix (default: stay)

	PepperFile           string        // path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	RequestTimeout       time.Duration // per-request deadline (default: 5s)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:          getEnvOrDefault("AUTH_ISSUER", "stay-auth"),
		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 14*24*time.Hour),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "auth.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		SessionStore:  getEnvOrDefault("SESSION_STORE", "database"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "stay"),

		PepperFile:           getEnvOrDefault("PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		RequestTimeout:       getEnvDurationOrDefault("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects combinations the application cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (want sqlite or postgres)", c.DatabaseDriver)
	}

	switch c.SessionStore {
	case "database", "memory", "redis":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (want database, redis or memory)", c.SessionStore)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) is shorter than ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
