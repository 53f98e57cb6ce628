// Package config loads environment-driven configuration for the datastore
// process: the database pool, the worker's commit-cycle thresholds, and the
// shared logger level.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute

	defaultCommitInterval = 15 * time.Second
	defaultCommitEvents   = 100
	defaultCommandBuffer  = 64

	postgresScheme = "postgresql://"
)

// ErrDatabaseURLEmpty is returned when DATABASE_URL is unset or blank.
var ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")

// ErrDatabaseURLScheme is returned when DATABASE_URL does not use the
// postgresql:// scheme; the legacy SQLite/import path is not supported.
var ErrDatabaseURLScheme = errors.New("DATABASE_URL must use the postgresql:// scheme")

// Config holds everything the datastore process needs at startup.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	CommitInterval    time.Duration
	CommitEventThresh int
	CommandBufferSize int

	LogLevel slog.Level
}

// Load reads Config from the environment, applying the same production
// defaults the connection pool has always shipped with.
func Load() *Config {
	return &Config{
		databaseURL:       getEnvStr("DATABASE_URL", ""),
		MaxOpenConns:      getEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:      getEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime:   getEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime:   getEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		CommitInterval:    getEnvDuration("DATASTORE_COMMIT_INTERVAL", defaultCommitInterval),
		CommitEventThresh: getEnvInt("DATASTORE_COMMIT_EVENT_THRESHOLD", defaultCommitEvents),
		CommandBufferSize: getEnvInt("DATASTORE_COMMAND_BUFFER", defaultCommandBuffer),
		LogLevel:          getEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate enforces the connection contract: a non-empty DATABASE_URL using
// the postgresql:// scheme. Any other scheme aborts startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if !strings.HasPrefix(c.databaseURL, postgresScheme) {
		return fmt.Errorf("%w: got %q", ErrDatabaseURLScheme, schemeOf(c.databaseURL))
	}

	return nil
}

// DatabaseURL returns the raw connection string. Named accessor rather than
// an exported field so callers can't casually log it unmasked.
func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

// MaskDatabaseURL returns a copy of the connection string with any password
// component replaced by "***", safe to include in logs.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAt := strings.LastIndex(afterScheme, "@")
	if lastAt == -1 {
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAt]

	colon := strings.Index(userInfo, ":")
	if colon == -1 {
		return c.databaseURL
	}

	username := userInfo[:colon]
	password := userInfo[colon+1:]

	if password == "" {
		return c.databaseURL
	}

	scheme := c.databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAt:]

	return scheme + "://" + username + ":***" + hostAndRest
}

func schemeOf(url string) string {
	if idx := strings.Index(url, "://"); idx != -1 {
		return url[:idx]
	}

	return "(none)"
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}

	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}

	return defaultValue
}

func getEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "debug":
			return slog.LevelDebug
		case "info":
			return slog.LevelInfo
		case "warn", "warning":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		}
	}

	return defaultValue
}
