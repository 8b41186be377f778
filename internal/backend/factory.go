// Package backend builds the record store and the sync publisher selected
// by configuration.
package backend

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	"fintrack/internal/storage/sqlite"
	"fintrack/internal/syncer"
)

// CleanupFunc releases what a factory call acquired.
type CleanupFunc func() error

func noCleanup() error { return nil }

type StoreResult struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

type PublisherResult struct {
	Publisher syncer.Publisher
	Cleanup   CleanupFunc
}

type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentStorage)}
}

// CreateStore opens the configured store. The caller owns Cleanup.
func (f *Factory) CreateStore(ctx context.Context, cfg *config.Config) (*StoreResult, error) {
	var store storage.Store
	switch cfg.DataBackend {
	case config.BackendSQLite:
		store = sqlite.New(cfg.SQLiteDBPath)
	case config.BackendMemory:
		store = memory.NewFromFiles(cfg.DataDirectory)
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}

	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DataBackend, err)
	}
	f.logger.InfoContext(ctx, "Record store ready",
		"backend", cfg.DataBackend,
		"db_path", cfg.SQLiteDBPath,
		"data_directory", cfg.DataDirectory)

	return &StoreResult{Store: store, Cleanup: store.Close}, nil
}

// CreatePublisher connects to the configured sync target. With no target
// the LogPublisher is returned and rows stay unsynced.
func (f *Factory) CreatePublisher(ctx context.Context, cfg *config.Config) (*PublisherResult, error) {
	switch cfg.SyncTarget {
	case config.SyncTargetNone, "":
		f.logger.InfoContext(ctx, "No sync target configured, rows stay unsynced")
		return &PublisherResult{Publisher: syncer.LogPublisher{}, Cleanup: noCleanup}, nil

	case config.SyncTargetAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("connect AMQP: %w", err)
		}
		f.logger.InfoContext(ctx, "AMQP sync target ready",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
		return &PublisherResult{Publisher: amqp.NewPublisher(client), Cleanup: client.Close}, nil

	case config.SyncTargetSheets:
		sheet, err := f.CreateSheet(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &PublisherResult{Publisher: sheets.NewPublisher(sheet), Cleanup: noCleanup}, nil

	default:
		return nil, fmt.Errorf("unsupported sync target: %s", cfg.SyncTarget)
	}
}

// CreateSheet authenticates against Google Sheets with the configured
// service account.
func (f *Factory) CreateSheet(ctx context.Context, cfg *config.Config) (*gsheet.Client, error) {
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Google Sheets sync target ready",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
