// Package wire provides dependency injection for the puma application.
// It selects the storage backend once per process and creates singleton
// services with lazy initialization.
package wire

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/puma/internal/adapters/audit"
	cliadapter "github.com/example/puma/internal/adapters/cli"
	"github.com/example/puma/internal/adapters/sqlite"
	"github.com/example/puma/internal/adapters/warehouse"
	"github.com/example/puma/internal/app"
	"github.com/example/puma/internal/config"
	"github.com/example/puma/internal/db"
	"github.com/example/puma/internal/logging"
	"github.com/example/puma/internal/ports/primary"
	"github.com/example/puma/internal/ports/secondary"
)

// connectTimeout bounds how long backend selection waits on the warehouse.
const connectTimeout = 10 * time.Second

// Settings are the process-wide options the CLI collects before any service
// is requested.
type Settings struct {
	ConfigPath string
	Verbose    bool
}

var (
	settings     Settings
	cfg          *config.Config
	logger       *zap.Logger
	engine       secondary.StorageEngine
	diaryService primary.DiaryService
	initErr      error
	once         sync.Once
)

// Configure sets the options used by the first service request. Calls after
// initialization have no effect.
func Configure(s Settings) {
	settings = s
}

// Config returns the loaded configuration.
func Config() (*config.Config, error) {
	once.Do(initServices)
	return cfg, initErr
}

// Logger returns the shared logger, or a no-op logger if initialization
// failed.
func Logger() *zap.Logger {
	once.Do(initServices)
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// DiaryService returns the singleton DiaryService instance.
func DiaryService() (primary.DiaryService, error) {
	once.Do(initServices)
	return diaryService, initErr
}

// DiaryAdapter returns a new DiaryAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func DiaryAdapter() (*cliadapter.DiaryAdapter, error) {
	return DiaryAdapterWithOutput(os.Stdout)
}

// DiaryAdapterWithOutput returns a new DiaryAdapter writing to the given output.
func DiaryAdapterWithOutput(out io.Writer) (*cliadapter.DiaryAdapter, error) {
	svc, err := DiaryService()
	if err != nil {
		return nil, err
	}
	return cliadapter.NewDiaryAdapter(svc, out), nil
}

// Diagnose runs the doctor checks against the selected backend.
func Diagnose(ctx context.Context) []cliadapter.CheckResult {
	once.Do(initServices)
	if initErr != nil {
		return []cliadapter.CheckResult{{Name: "startup", Details: initErr.Error()}}
	}
	results := []cliadapter.CheckResult{{Name: "config", OK: true, Details: cfg.String()}}
	return append(results, Checks(ctx, engine)...)
}

// Close releases the storage engine and flushes the logger.
func Close() error {
	var err error
	if engine != nil {
		err = engine.Close()
	}
	if logger != nil {
		_ = logger.Sync()
	}
	return err
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	if settings.ConfigPath != "" {
		cfg, initErr = config.LoadFromPath(settings.ConfigPath)
	} else {
		cfg, initErr = config.Load()
	}
	if initErr != nil {
		return
	}

	logger, initErr = logging.InitLogger(logging.Options{Dir: cfg.LogDir, Verbose: settings.Verbose})
	if initErr != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	engine, initErr = OpenEngine(ctx, cfg, logger)
	if initErr != nil {
		return
	}

	catalog, err := config.LoadActivityCatalog(cfg.ActivityCatalog)
	if err != nil {
		logger.Warn("using default activity catalog", zap.Error(err))
	}

	diaryService = app.NewDiaryService(engine, app.DiaryOptions{
		Audit:   audit.NewLogWriterAdapter(logger, engine.Name()),
		Catalog: catalog,
		Logger:  logger,
	})
}

// OpenEngine selects and opens the storage backend named by cfg. "auto"
// prefers the warehouse when a DSN is configured and falls back to the
// embedded file when it cannot be reached.
func OpenEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (secondary.StorageEngine, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		return openRemote(ctx, cfg, logger)
	case config.BackendAuto:
		if cfg.WarehouseDSN != "" {
			eng, err := openRemote(ctx, cfg, logger)
			if err == nil {
				return eng, nil
			}
			logger.Warn("warehouse unavailable, using embedded database", zap.Error(err))
		}
		return openEmbedded(ctx, cfg, logger)
	case config.BackendEmbedded, "":
		return openEmbedded(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openEmbedded(ctx context.Context, cfg *config.Config, logger *zap.Logger) (secondary.StorageEngine, error) {
	eng, err := sqlite.Open(ctx, sqlite.EngineOptions{
		Path:        cfg.DatabasePath,
		BusyTimeout: cfg.BusyTimeout,
		Retry: db.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  time.Second,
		},
		Logger: logger.Named("sqlite"),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("opened embedded database", zap.String("path", cfg.DatabasePath))
	return eng, nil
}

func openRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (secondary.StorageEngine, error) {
	eng, err := warehouse.Open(ctx, warehouse.Options{
		DSN:    cfg.WarehouseDSN,
		Logger: logger.Named("warehouse"),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("connected to warehouse")
	return eng, nil
}
