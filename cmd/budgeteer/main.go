package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgeteer/internal/cache"
	"budgeteer/internal/cli"
	"budgeteer/internal/config"
	apphttp "budgeteer/internal/http"
	"budgeteer/internal/log"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.FromContext(context.Background()).Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger, cli.WithEvents())
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	opts := []apphttp.Option{
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
	}
	exporter, err := app.SheetExporter(ctx)
	switch {
	case errors.Is(err, cli.ErrSheetsDisabled):
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	case err != nil:
		return err
	default:
		opts = append(opts, apphttp.WithSheetExporter(exporter))
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	srv := apphttp.NewServer(":"+cfg.Port, app.Service, opts...)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(app.Dashboards)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting budgeteer server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", app.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return caches.Run(gctx, cfg.CacheTTL) })
	g.Go(func() error { return srv.RunCleanup(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
