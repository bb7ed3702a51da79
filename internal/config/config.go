package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// minSecretLen is the shortest SESSION_SECRET accepted for HS256.
const minSecretLen = 32

type Config struct {
	// HTTP Server
	Port         string
	CookieSecure bool

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// Sessions
	SessionSecret        string
	SessionTTL           time.Duration
	SessionRefreshWindow time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger
	GoogleSpreadsheetID      string
	GoogleLedgerSheetName    string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Caches
	SnapshotTTL      time.Duration
	SnapshotCapacity int
	CleanupInterval  time.Duration

	// Worker
	MirrorMaxRetries int
	WorkerHTTPPort   string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetnest.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		SessionSecret:        getEnv("SESSION_SECRET", ""),
		SessionTTL:           getEnvDuration("SESSION_TTL", time.Hour),
		SessionRefreshWindow: getEnvDuration("SESSION_REFRESH_WINDOW", 10*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetnest"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgerSheetName:    getEnv("GOOGLE_LEDGER_SHEET_NAME", "Ledger"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		SnapshotTTL:      getEnvDuration("SNAPSHOT_TTL", 10*time.Minute),
		SnapshotCapacity: getEnvInt("SNAPSHOT_CAPACITY", 500),
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),

		MirrorMaxRetries: getEnvInt("MIRROR_MAX_RETRIES", 3),
		WorkerHTTPPort:   getEnv("WORKER_HTTP_PORT", "8082"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)

	// Validate data backend
	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == BackendPostgres {
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: must be a postgres:// or postgresql:// URL")
		}
	}

	// Validate sessions
	if len(c.SessionSecret) < minSecretLen {
		errors = append(errors, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionRefreshWindow < 0 || c.SessionRefreshWindow >= c.SessionTTL {
		errors = append(errors, fmt.Sprintf("invalid session refresh window %v: must be between 0 and the session ttl", c.SessionRefreshWindow))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if a ledger spreadsheet is set
	if c.GoogleSpreadsheetID != "" {
		hasServiceAccount := c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != ""
		hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
		hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""

		if !hasServiceAccount && !hasClient {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE/JSON or GOOGLE_OAUTH_CLIENT_FILE/JSON must be provided for the ledger")
		}
		if !hasServiceAccount && hasClient && !hasToken {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided with an OAuth client")
		}

		for _, f := range []struct{ label, path string }{
			{"service account", c.GoogleServiceAccountFile},
			{"OAuth client", c.GoogleOAuthClientFile},
			{"OAuth token", c.GoogleOAuthTokenFile},
		} {
			if f.path == "" {
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google %s file does not exist: %s", f.label, f.path))
			}
		}
	}

	// Validate rate limiting
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	// Validate caches
	if c.SnapshotCapacity < 1 {
		errors = append(errors, fmt.Sprintf("invalid snapshot capacity %d: must be at least 1", c.SnapshotCapacity))
	}
	if c.CleanupInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cleanup interval %v: must be at least 1 second", c.CleanupInterval))
	} else if c.CleanupInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cleanup interval %v: must be at most 24 hours", c.CleanupInterval))
	}

	// Validate worker configuration
	if c.MirrorMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid mirror max retries %d: must be at least 1", c.MirrorMaxRetries))
	} else if c.MirrorMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid mirror max retries %d: must be at most 10", c.MirrorMaxRetries))
	}
	if c.WorkerHTTPPort != "" {
		errors = append(errors, validatePort("worker port", c.WorkerHTTPPort)...)
	}

	// Validate logging
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// LedgerEnabled reports whether a Google Sheets ledger is configured.
func (c *Config) LedgerEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func validatePort(label, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", label, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", label, port)}
	}
	return nil
}

// ReadSecret returns the inline value when set, otherwise the contents of
// path. Both empty yields nil.
func ReadSecret(inline, path string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
