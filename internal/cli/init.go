// Package cli holds the bootstrap shared by the binaries: environment,
// logging, configuration and opening the ledger with its collaborators.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"budgeteer/internal/amqp"
	"budgeteer/internal/backend"
	"budgeteer/internal/cache"
	"budgeteer/internal/config"
	"budgeteer/internal/export/sheets"
	"budgeteer/internal/kv"
	"budgeteer/internal/ledger"
	"budgeteer/internal/log"
	"budgeteer/internal/services"

	"github.com/joho/godotenv"
)

// ErrSheetsDisabled is returned by App.SheetExporter when no spreadsheet
// is configured.
var ErrSheetsDisabled = errors.New("google sheets export is not configured")

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as slog's default. Bad values fall back to info/text; they
// are reported later by config validation.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	if cfg.LogFormat == "json" {
		lc.Format = "json"
	}
	lc.Component = component
	lc.Output = os.Stderr

	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig reads the environment and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

type AppOption func(*appOptions)

type appOptions struct {
	events bool
}

// WithEvents connects to the broker when AMQP_URL is set.
func WithEvents() AppOption {
	return func(o *appOptions) { o.events = true }
}

// App is an opened ledger with the service built on it.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	Store      kv.Store
	Ledger     *ledger.Store
	Service    *services.LedgerService
	Dashboards *cache.LRUCache[services.Dashboard]
	Publisher  *amqp.Client

	cleanup backend.CleanupFunc
}

// NewApp opens the configured backend and loads the ledger from it. A
// broker that cannot be reached only disables events.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}

	l, err := ledger.Open(ctx, res.Store, ledger.WithLogger(logger.WithComponent(log.ComponentLedger).Logger))
	if err != nil {
		_ = res.Cleanup()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Store:      res.Store,
		Ledger:     l,
		Dashboards: cache.NewLRUCache[services.Dashboard](cfg.CacheSize, cfg.CacheTTL),
		cleanup:    res.Cleanup,
	}

	svcOpts := []services.Option{
		services.WithDashboardCache(app.Dashboards),
		services.WithDaysInMonth(cfg.DaysInMonth),
		services.WithLogger(logger.WithComponent(log.ComponentLedger).Logger),
	}
	if o.events && cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "Ledger events disabled: broker unreachable",
				log.FieldError, err,
				"exchange", cfg.AMQPExchange)
		} else {
			app.Publisher = client
			svcOpts = append(svcOpts, services.WithPublisher(client))
			logger.InfoContext(ctx, "Ledger events enabled",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}
	app.Service = services.NewLedgerService(l, svcOpts...)

	return app, nil
}

// SheetExporter connects to Google Sheets with the configured service
// account.
func (a *App) SheetExporter(ctx context.Context) (*sheets.Exporter, error) {
	if !a.Config.SheetsEnabled() {
		return nil, ErrSheetsDisabled
	}
	return sheets.New(ctx, sheets.Config{
		SpreadsheetID:   a.Config.GoogleSpreadsheetID,
		SheetName:       a.Config.GoogleSheetName,
		CredentialsFile: a.Config.GoogleServiceAccountFile,
		CredentialsJSON: a.Config.GoogleServiceAccountJSON,
		Logger:          a.Logger.WithComponent(log.ComponentSheets).Logger,
	})
}

// Close releases the broker connection and the store.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp client: %w", err))
		}
	}
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
