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
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentRecurring)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, log.ComponentRecurring)

	logger.Info("Starting recurring-worker")

	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	var (
		collector   *metrics.Collector
		pubObserver amqp.PublishObserver
	)
	if cfg.MetricsEnabled {
		collector = metrics.New("fintrack_recurring")
		pubObserver = collector
	}

	// Created transactions are announced so the ledger worker re-evaluates
	// budgets. Without AMQP they are only written.
	publisher, closePublisher := cli.InitPublisher(logger, cfg, pubObserver)
	defer closePublisher()

	// No report cache lives in this process.
	txs := services.NewTransactionService(repo, publisher, nil)
	processor := services.NewRecurringProcessor(repo, txs)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	process := func(ctx context.Context, now time.Time) {
		count, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", log.FieldError, err)
			return
		}
		if collector != nil {
			collector.RecurringCreated(count)
		}
		logger.Info("Recurring processing complete",
			"transactions_created", count,
			"next_check", now.Add(cfg.RecurringInterval).Format("15:04:05"))
	}

	logger.Info("Running initial recurring processing")
	process(ctx, time.Now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				process(gctx, now)
			}
		}
	})
	if collector != nil {
		g.Go(func() error {
			return cli.ServeMetrics(gctx, logger, cfg.WorkerMetricsAddr, collector.Handler())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}
