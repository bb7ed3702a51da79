package backend

import (
	"fmt"

	"budgetnest/internal/config"
)

// FromAppConfig converts the application config to backend config. Ledger
// credential files are read here so the factory never touches the disk.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	cfg := Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleLedgerSheetName,
	}

	if appConfig.LedgerEnabled() {
		var err error
		creds := &cfg.GoogleCredentials
		if creds.ServiceAccountJSON, err = config.ReadSecret(appConfig.GoogleServiceAccountJSON, appConfig.GoogleServiceAccountFile); err != nil {
			return Config{}, fmt.Errorf("service account: %w", err)
		}
		if creds.OAuthClientJSON, err = config.ReadSecret(appConfig.GoogleOAuthClientJSON, appConfig.GoogleOAuthClientFile); err != nil {
			return Config{}, fmt.Errorf("oauth client: %w", err)
		}
		if creds.OAuthTokenJSON, err = config.ReadSecret(appConfig.GoogleOAuthTokenJSON, appConfig.GoogleOAuthTokenFile); err != nil {
			return Config{}, fmt.Errorf("oauth token: %w", err)
		}
	}

	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case MemoryBackend:
		// nothing to check
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
