package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/attachments"
	"fintrack/internal/backup"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/export"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"
	"fintrack/internal/settings"
	"fintrack/internal/stats"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	var (
		collector     *metrics.Collector
		cacheObserver stats.CacheObserver
		pubObserver   amqp.PublishObserver
	)
	if cfg.MetricsEnabled {
		collector = metrics.New("fintrack")
		cacheObserver, pubObserver = collector, collector
	}

	publisher, closePublisher := cli.InitPublisher(logger, cfg, pubObserver)
	defer closePublisher()

	statsSvc := stats.NewService(repo, cache.Options{Capacity: cfg.StatsCacheSize, TTL: cfg.StatsCacheTTL}, cacheObserver)
	caches := cache.NewManager()
	for _, c := range statsSvc.Caches() {
		caches.Register(c)
	}
	if cfg.StatsCacheTTL > 0 {
		caches.StartCleanup(cfg.StatsCacheTTL)
	}
	defer caches.Stop()

	images, err := attachments.NewStore(cfg.ImagesDir, cfg.AttachmentMaxDimension)
	if err != nil {
		logger.Error("Failed to initialize attachment store", log.FieldError, err, "path", cfg.ImagesDir)
		os.Exit(1)
	}

	settingsSvc := settings.NewService(repo, cfg.DefaultCurrency)
	txs := services.NewTransactionService(repo, publisher, statsSvc)
	svc := apphttp.Services{
		Store:        repo,
		Catalog:      services.NewCatalogService(repo, statsSvc, settingsSvc.DefaultCurrency),
		Transactions: txs,
		Budgets:      services.NewBudgetService(repo, publisher),
		Recurring:    services.NewRecurringProcessor(repo, txs),
		Stats:        statsSvc,
		Settings:     settingsSvc,
		Backup:       backup.NewService(repo, settingsSvc, statsSvc, images.Root()),
		Importer:     export.NewImporter(repo, statsSvc),
		Attachments:  images,
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             logger,
		Metrics:            collector,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"port", cfg.Port,
			"metrics", cfg.MetricsEnabled,
			"amqp", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext(30 * time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
