package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/storage"
	"fintrack/internal/syncer"
	"fintrack/internal/transactions"
	"fintrack/internal/view"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig()
	if cfg == nil {
		// Log with defaults so the validation report is still readable.
		logger := log.New(log.DefaultConfig())
		cli.Fatal(context.Background(), logger, "Configuration validation failed", cfgErr)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	if envErr != nil {
		logger.WarnContext(context.Background(), "Ignoring unreadable .env file", log.FieldError, envErr)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Fatal(ctx, logger, "fintrack stopped with error", err)
	}
	logger.InfoContext(ctx, "fintrack stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	factory := backend.NewFactory(logger)

	storeRes, err := factory.CreateStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storeRes.Cleanup()
	store := storeRes.Store

	caches := cache.NewManager()
	var catCache cache.Cache[[]core.Category]
	if cfg.CategoryCacheTTL > 0 {
		lru := cache.NewLRUCache[[]core.Category](100, cfg.CategoryCacheTTL)
		caches.Register(lru)
		catCache = lru
	}
	categories := transactions.NewCategoryRepository(store, catCache)

	var enforce *transactions.CategoryRepository
	if cfg.EnforceCategories {
		enforce = categories
	}
	repo := transactions.NewRepository(store, enforce)

	ledger := view.New(repo, cfg.LocalUserID)
	ledger.Load(ctx)
	if st := ledger.Snapshot(); st.Err != "" {
		logger.WarnContext(ctx, "Initial load failed", log.FieldError, st.Err)
	}

	pubRes, err := factory.CreatePublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer pubRes.Cleanup()

	processor := syncer.NewProcessor(repo, pubRes.Publisher, ledger, cfg.LocalUserID, syncer.Config{
		Interval:  cfg.SyncInterval,
		BatchSize: cfg.SyncBatchSize,
	})

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Ledger:     ledger,
		Lookup:     repo,
		Categories: categories,
		Sync:       processor,
		Limiter:    ratelimit.New(ratelimit.DefaultConfig()),
		Logger:     logger.WithComponent(log.ComponentHTTP),
		Ready: func(ctx context.Context) error {
			_, err := store.Query(ctx, storage.TableCategories, storage.Query{Limit: 1})
			return err
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "Starting fintrack server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"sync_target", cfg.SyncTarget,
			log.FieldUserID, cfg.LocalUserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := processor.Start(gctx); err != nil {
		return err
	}
	caches.StartCleanup(gctx, 5*time.Minute)

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(context.Background(), "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := processor.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		caches.Stop()
		return errors.Join(errs...)
	})

	return g.Wait()
}
