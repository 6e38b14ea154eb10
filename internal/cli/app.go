package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/analysis"
	"labreader/internal/config"
	"labreader/internal/intake"
	"labreader/internal/logger"
	"labreader/internal/ocr"
	"labreader/internal/pipeline"
	"labreader/internal/redis"
	"labreader/internal/storage"
)

// app holds the long-lived dependencies built once from the immutable config.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *sql.DB
	store    *storage.Store
	cache    *redis.Client
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func openStore(cfg *config.Config) (*sql.DB, *storage.Store, error) {
	dbType := cfg.BasicConfig.Database
	if dbCfg := cfg.Databases[dbType]; strings.HasPrefix(dbType, "sqlite") && dbCfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbCfg.DSN), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, storage.NewStore(db), nil
}

func newApp(ctx context.Context, cfg *config.Config, withCache bool) (*app, error) {
	a := &app{cfg: cfg, log: logger.WithComponent("app")}

	db, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.db, a.store = db, store
	a.closers = append(a.closers, db.Close)

	if withCache && cfg.Redis.Host != "" {
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			a.log.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
		} else {
			a.cache = client
			a.closers = append(a.closers, client.Close)
		}
	}

	invoker, err := a.newInvoker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider, err := analysis.New(ctx, cfg, logger.WithComponent("analysis"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init analysis provider: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.pipeline = pipeline.New(pipeline.Options{
		Intake:           intake.New(cfg.BasicConfig.UploadDir, cfg.BasicConfig.MaxUploadBytes),
		Invoker:          invoker,
		Provider:         provider,
		ArtifactDir:      cfg.BasicConfig.ArtifactDir,
		MaxConcurrentOCR: cfg.OCR.MaxConcurrent,
		Tracker:          store,
		Recorder:         store,
		Log:              logger.WithComponent("pipeline"),
	})
	a.log.Info().
		Str("ocr_backend", cfg.OCR.Backend).
		Str("analysis_provider", provider.Name()).
		Str("database", cfg.BasicConfig.Database).
		Msg("application initialized")
	return a, nil
}

func (a *app) newInvoker(ctx context.Context) (ocr.Invoker, error) {
	timeout := time.Duration(a.cfg.OCR.TimeoutSeconds) * time.Second
	log := logger.WithComponent("ocr")
	switch a.cfg.OCR.Backend {
	case config.OCRBackendVision:
		inv, err := ocr.NewVisionInvoker(ctx, a.cfg.OCR.CredentialsFile, timeout, log)
		if err != nil {
			return nil, fmt.Errorf("init vision ocr: %w", err)
		}
		a.closers = append(a.closers, inv.Close)
		return inv, nil
	default:
		inv := ocr.NewCommandInvoker(a.cfg.OCR.Command, a.cfg.OCR.Args, timeout, log)
		if err := inv.EnsureBinary(); err != nil {
			a.log.Warn().Err(err).Msg("ocr tool not found on PATH, uploads will fail until it is installed")
		}
		return inv, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close resource failed")
		}
	}
	a.closers = nil
}
