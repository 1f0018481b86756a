package main

import (
	"context"
	"errors"
	"os"

	"budgeteer/internal/amqp"
	"budgeteer/internal/cli"
	"budgeteer/internal/config"
	"budgeteer/internal/core"
	"budgeteer/internal/ledger"
	"budgeteer/internal/log"
	"budgeteer/internal/services"
	"budgeteer/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.FromContext(context.Background()).Error("Event consumer exited with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentEvents)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		return err
	}
	if !cfg.EventsEnabled() {
		return errors.New("AMQP_URL is required for the event consumer")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	// Opened only to read what the server persisted; this process never
	// writes the ledger.
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	var exporter services.SheetExporter
	sheetsExporter, err := app.SheetExporter(ctx)
	switch {
	case errors.Is(err, cli.ErrSheetsDisabled):
		logger.Info("Google Sheets disabled - events are only audited")
	case err != nil:
		return err
	default:
		exporter = sheetsExporter
		logger.Info("Google Sheets mirror enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"interval", cfg.SheetsSyncInterval)
	}

	read := func(ctx context.Context) ([]core.Transaction, error) {
		return ledger.ReadTransactions(ctx, app.Store)
	}
	w := worker.NewSyncWorker(read, exporter, logger.WithComponent(log.ComponentEvents).Logger)

	// Bring the sheet up to date with anything missed while we were down.
	w.MarkStale()
	if err := w.Flush(ctx); err != nil {
		logger.Error("Startup sheets sync failed", log.FieldError, err)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("Consuming ledger events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := client.ConsumeEvents(gctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return w.Run(gctx, cfg.SheetsSyncInterval) })

	if err := g.Wait(); err != nil {
		return err
	}

	// Mirror whatever arrived since the last tick.
	if err := w.Flush(context.Background()); err != nil {
		logger.Error("Final sheets sync failed", log.FieldError, err)
	}
	logger.Info("Event consumer stopped", "handled", w.Counts())
	return nil
}
