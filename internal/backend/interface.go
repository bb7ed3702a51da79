package backend

import (
	"context"

	"budgetnest/internal/amqp"
	"budgetnest/internal/sheets"
	"budgetnest/internal/store"
)

// Backend is the persistence surface every storage engine provides.
type Backend interface {
	Income() store.IncomeStore
	Expenses() store.ExpenseStore
	Users() store.UserStore
	Sessions() store.SessionStore
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Publisher is nil when no broker is configured or reachable.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// LedgerResult holds the ledger the worker mirrors into.
type LedgerResult struct {
	Ledger sheets.Ledger
	// Remote is false for the in-process fallback ledger.
	Remote bool
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateLedger builds the Google Sheets ledger, or a memory ledger when
	// no spreadsheet is configured.
	CreateLedger(ctx context.Context, config Config) (*LedgerResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Record events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	GoogleSpreadsheetID string
	GoogleSheetName     string
	GoogleCredentials   LedgerCredentials
}

// LedgerCredentials are the raw credential documents for the ledger.
type LedgerCredentials struct {
	ServiceAccountJSON []byte
	OAuthClientJSON    []byte
	OAuthTokenJSON     []byte
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
