package backend

import (
	"context"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/services"
	"finanzas/internal/sheets"
	gsheet "finanzas/internal/sheets/google"
	sheetsmem "finanzas/internal/sheets/memory"
	"finanzas/internal/storage"
	"finanzas/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger

	// newPublisher is replaced in tests
	newPublisher func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:       logger,
		newPublisher: amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store services.Store
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.NewFromFiles(config.DataDirectory, config.DefaultOwner)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", config.DataDirectory)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var opts []services.Option
	if config.AMQPURL != "" {
		client, err := f.newPublisher(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			// Publishing is best effort; the reconciler repairs the mirror later.
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			opts = append(opts, services.WithPublisher(client))
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewLedgerService(store, opts...)
	return &BackendResult{
		Service: svc,
		Store:   store,
		Cleanup: svc.Close,
	}, nil
}

// CreateMirror implements Factory.CreateMirror
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (sheets.Mirror, error) {
	if config.Sheets.SpreadsheetID == "" {
		f.logger.WarnContext(ctx, "No spreadsheet configured, mirroring in memory")
		return sheetsmem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.Sheets.SpreadsheetID,
		ExpensesSheet:      config.Sheets.ExpensesSheet,
		IncomesSheet:       config.Sheets.IncomesSheet,
		ServiceAccountJSON: config.Sheets.ServiceAccountJSON,
		ServiceAccountFile: config.Sheets.ServiceAccountFile,
		OAuthClientJSON:    config.Sheets.OAuthClientJSON,
		OAuthClientFile:    config.Sheets.OAuthClientFile,
		OAuthTokenJSON:     config.Sheets.OAuthTokenJSON,
		OAuthTokenFile:     config.Sheets.OAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeaders(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare sheet headers: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets mirror",
		"spreadsheet_id", config.Sheets.SpreadsheetID)
	return client, nil
}
