// Package app wires the ingest service to its infrastructure. The ingest
// CLI, the worker and the HTTP server all start from here.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandroruanova/rowloader/internal/api"
	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	"github.com/alejandroruanova/rowloader/internal/core/services/validation"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/cache"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/database"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/parsers"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/storage"
	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	applogger "github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

// Options adjusts how the application is assembled
type Options struct {
	// DryRun keeps entities in memory and skips Postgres and Redis
	DryRun bool
	// SheetsFile overrides the configured sheet definitions file
	SheetsFile string
}

// App holds the assembled service and the connections it owns
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *ingest.Service
	Storage storage.Storage
	DB      *database.PostgresDB
	Cache   *cache.RedisCache
	Stores  ingest.StoreProvider
}

// New connects the infrastructure and builds the ingest service
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	sheetsFile := cfg.Ingest.SheetsFile
	if opts.SheetsFile != "" {
		sheetsFile = opts.SheetsFile
	}
	sheets, err := config.LoadSheets(sheetsFile)
	if err != nil {
		return nil, err
	}

	files, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Storage: files}
	deps := ingest.Dependencies{
		Files:       files,
		Validator:   validation.NewRuleValidator(),
		Normalizers: parsers.NewNormalizerFactory(&parsers.ParserConfig{MaxFileSize: cfg.MaxFileSizeBytes()}),
		Logger:      logger,
		LockTTL:     time.Duration(cfg.Ingest.LockTTL) * time.Second,
	}

	if opts.DryRun {
		a.Stores = ingest.NewMemoryProvider()
		deps.Stores = a.Stores
	} else {
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
		a.DB, err = database.NewPostgresDB(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := a.DB.Migrate(); err != nil {
			a.Close()
			return nil, err
		}
		for _, sheet := range sheets {
			if err := a.DB.MigrateRecorderTables(sheet.Recorders); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.Stores = repositories.NewDocumentProvider(a.DB.DB, logger)
		deps.Stores = a.Stores
		deps.Recorders = repositories.NewRecorderFactory(a.DB.DB, logger)

		if cfg.Cache.Enabled {
			a.Cache, err = cache.NewRedisCache(&cfg.Cache, logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to initialize redis: %w", err)
			}
			deps.Lock = a.Cache
		}
	}

	a.Service, err = ingest.NewService(sheets, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("ingest service ready",
		slog.Any("sheets", a.Service.Sheets()),
		slog.Bool("dry_run", opts.DryRun),
		slog.Bool("run_lock", deps.Lock != nil))

	return a, nil
}

// HealthChecks returns a check per connected dependency
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if a.DB != nil {
		checks["database"] = a.DB.Health
	}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Health
	}
	return checks
}

// Close releases every connection the application opened
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("failed to close redis", applogger.Err(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("failed to close database", applogger.Err(err))
		}
	}
}
