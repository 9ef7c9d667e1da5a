package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"
	"fintrack/internal/settings"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the ledger worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()
	loc := repo.Location()

	var (
		collector   *metrics.Collector
		observer    worker.Observer
		pubObserver amqp.PublishObserver
	)
	if cfg.MetricsEnabled {
		collector = metrics.New("fintrack_worker")
		observer, pubObserver = collector, collector
	}

	// Workbook sync is optional.
	var workbook sheets.WorkbookWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		workbook = client
		logger.Info("Google Sheets sync enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled, no GOOGLE_SPREADSHEET_ID provided")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, pubObserver)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	budgets := services.NewBudgetService(repo, nil)
	settingsSvc := settings.NewService(repo, cfg.DefaultCurrency)
	ledger := worker.NewLedgerWorker(budgets, repo, settingsSvc, workbook, observer, cfg.EventDebounce)
	defer ledger.Stop()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	logger.Info("Performing startup check")
	if err := ledger.StartupCheck(ctx, loc); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.ConsumeLedgerEvents(gctx, ledger.HandleEvent)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				// Retries failed months and catches up on events lost while
				// the broker was unavailable.
				if err := ledger.CatchUp(gctx, loc); err != nil {
					logger.Error("Periodic budget check failed", log.FieldError, err,
						"pending", len(ledger.PendingMonths()))
				}
				if err := ledger.SyncWorkbook(gctx); err != nil {
					logger.Error("Periodic workbook sync failed", log.FieldError, err)
				}
			}
		}
	})
	if collector != nil {
		g.Go(func() error {
			return cli.ServeMetrics(gctx, logger, cfg.WorkerMetricsAddr, collector.Handler())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
