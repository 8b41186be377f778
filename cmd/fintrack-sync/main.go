// Command fintrack-sync pushes unsynced transactions outside the server
// process.
//
// Modes:
//
//	fintrack-sync            poll on SYNC_INTERVAL until interrupted
//	fintrack-sync -once      run a single pass and exit
//	fintrack-sync -consume   read AMQP sync messages and append them to Google Sheets
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/syncer"
	"fintrack/internal/transactions"
	"fintrack/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	consume := flag.Bool("consume", false, "consume AMQP sync messages and forward them to Google Sheets")
	envFile := flag.String("env", "", "optional .env file (default: ./.env)")
	flag.Parse()

	var envErr error
	if *envFile != "" {
		envErr = cli.LoadEnvFile(*envFile)
	} else {
		envErr = cli.LoadEnvFile()
	}

	cfg, err := cli.LoadAndValidateConfig()
	if cfg == nil {
		cli.Fatal(context.Background(), log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentSync)
	if envErr != nil {
		logger.WarnContext(context.Background(), "Ignoring unreadable .env file", log.FieldError, envErr)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	switch {
	case *consume:
		err = runConsumer(ctx, cfg, logger)
	case *once:
		err = runOnce(ctx, cfg, logger)
	default:
		err = runLoop(ctx, cfg, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(ctx, logger, "fintrack-sync failed", err)
	}
	logger.InfoContext(context.Background(), "fintrack-sync finished")
}

// newProcessor opens the store and the configured target. No view cache
// lives in this process, so nothing is reloaded after a pass.
func newProcessor(ctx context.Context, cfg *config.Config, logger *log.Logger) (*syncer.Processor, func(), error) {
	if cfg.DataBackend == config.BackendMemory {
		logger.WarnContext(ctx, "Memory backend holds no rows outside the server process; nothing will sync")
	}
	factory := backend.NewFactory(logger)

	storeRes, err := factory.CreateStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	pubRes, err := factory.CreatePublisher(ctx, cfg)
	if err != nil {
		storeRes.Cleanup()
		return nil, nil, err
	}
	cleanup := func() {
		if err := pubRes.Cleanup(); err != nil {
			logger.WarnContext(ctx, "Failed to close sync target", log.FieldError, err)
		}
		if err := storeRes.Cleanup(); err != nil {
			logger.WarnContext(ctx, "Failed to close store", log.FieldError, err)
		}
	}

	repo := transactions.NewRepository(storeRes.Store, nil)
	p := syncer.NewProcessor(repo, pubRes.Publisher, nil, cfg.LocalUserID, syncer.Config{
		Interval:  cfg.SyncInterval,
		BatchSize: cfg.SyncBatchSize,
	})
	return p, cleanup, nil
}

func runOnce(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	p, cleanup, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := p.SyncOnce(ctx)
	fmt.Printf("pending=%d accepted=%d marked=%d\n", res.Pending, res.Accepted, res.Marked)
	return err
}

func runLoop(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	p, cleanup, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

// runConsumer is the far side of SYNC_TARGET=amqp: every message is appended
// to the spreadsheet, and a failed append is requeued.
func runConsumer(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	sheet, err := backend.NewFactory(logger).CreateSheet(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect AMQP: %w", err)
	}
	defer client.Close()

	w := worker.NewSyncWorker(sheets.NewPublisher(sheet))
	logger.InfoContext(ctx, "Forwarding sync messages to Google Sheets",
		"queue", cfg.AMQPQueue,
		"spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client.ConsumeTransactionSync(ctx, w.HandleSyncMessage)
}
