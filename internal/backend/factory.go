package backend

import (
	"context"
	"fmt"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
	gsheet "budgetnest/internal/sheets/google"
	ledgermem "budgetnest/internal/sheets/memory"
	"budgetnest/internal/storage"
	"budgetnest/internal/storage/postgres"
	"budgetnest/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

var _ Factory = (*DefaultFactory)(nil)

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   Backend
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		b, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		b, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		b = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	publisher := f.connectPublisher(config)

	return &BackendResult{
		Backend:   b,
		Publisher: publisher,
		Cleanup: func() error {
			if publisher != nil {
				if err := publisher.Close(); err != nil {
					f.logger.Warn("Failed to close AMQP client", log.FieldError, err)
				}
			}
			return b.Close()
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (Backend, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return sqliteRepo, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (Backend, error) {
	repo, err := postgres.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	f.logger.Info("Initialized postgres backend")
	return repo, nil
}

func (f *DefaultFactory) createMemoryBackend() Backend {
	f.logger.Info("Initialized memory backend")
	return memory.New()
}

// connectPublisher dials the broker when configured. A broker that cannot
// be reached leaves the app running without record events.
func (f *DefaultFactory) connectPublisher(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without record events", log.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

// CreateLedger implements Factory.CreateLedger
func (f *DefaultFactory) CreateLedger(ctx context.Context, config Config) (*LedgerResult, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("No spreadsheet configured, using memory ledger")
		return &LedgerResult{Ledger: ledgermem.New()}, nil
	}

	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SheetName:     config.GoogleSheetName,
		Credentials: gsheet.Credentials{
			ServiceAccountJSON: config.GoogleCredentials.ServiceAccountJSON,
			OAuthClientJSON:    config.GoogleCredentials.OAuthClientJSON,
			OAuthTokenJSON:     config.GoogleCredentials.OAuthTokenJSON,
		},
		Logger: f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets ledger: %w", err)
	}

	f.logger.Info("Initialized Google Sheets ledger", "sheet", config.GoogleSheetName)
	return &LedgerResult{Ledger: client, Remote: true}, nil
}
