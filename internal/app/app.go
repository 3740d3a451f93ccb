// Package app wires the production stack: PostgreSQL measurements and
// results, the processed-instance tracker and the Orthanc archive.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/api"
	"github.com/ibh-daai/bone-mineral-density/internal/cache"
	"github.com/ibh-daai/bone-mineral-density/internal/config"
	"github.com/ibh-daai/bone-mineral-density/internal/database"
	"github.com/ibh-daai/bone-mineral-density/internal/repository"
	"github.com/ibh-daai/bone-mineral-density/internal/results"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
	"github.com/ibh-daai/bone-mineral-density/pkg/orthanc"
)

// App holds the wired services of one process
type App struct {
	Config    *config.Manager
	Logger    *logrus.Logger
	DB        *database.DB
	Results   *results.PostgresStore
	Tracker   *cache.Tracker
	Archive   *orthanc.Client
	Tables    *service.ReferenceTables
	Processor *service.StudyProcessor

	closers []func() error
}

// New connects to every backing service. Redis is optional; without it the
// tracker is process-local.
func New(ctx context.Context, cm *config.Manager, logger *logrus.Logger) (*App, error) {
	cfg := cm.GetConfig()
	a := &App{Config: cm, Logger: logger}

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	store, err := results.NewPostgresStoreFromURL(database.ConfigFrom(cfg.Database).URL())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	a.Results = store
	a.closers = append(a.closers, store.Close)

	var redisTracker *cache.RedisTracker
	if cfg.Cache.RedisURL != "" {
		redisTracker, err = cache.NewRedisTracker(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, tracking processed reports in memory only")
			redisTracker = nil
		}
	}
	tracker, err := cache.NewTracker(cfg.Cache.MaxItems, redisTracker, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating tracker: %w", err)
	}
	a.Tracker = tracker
	a.closers = append(a.closers, tracker.Close)

	tables, err := service.DefaultReferenceTables()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading reference tables: %w", err)
	}
	a.Tables = tables.WithInstitutions(cfg.Institutions)

	a.Archive = orthanc.NewClient(cfg.Archive, logger)

	repo := repository.NewPostgresRepository(db.Pool, logger)
	interpreter := service.NewBoneDensityInterpreter(logger, repo, a.Tables, service.EngineOptions{
		RecordZeroHipChange: cfg.Engine.RecordZeroHipChange,
	})
	a.Processor = service.NewStudyProcessor(logger, service.ProcessorDependencies{
		Repository:  repo,
		Interpreter: interpreter,
		Results:     store,
		Tracker:     tracker,
		Archive:     a.Archive,
		Sender:      a.Archive,
	})

	logger.WithFields(logrus.Fields{
		"archive":      cfg.Archive.BaseURL,
		"redis":        redisTracker != nil,
		"institutions": len(cfg.Institutions),
	}).Info("Services initialized")
	return a, nil
}

// HTTPDependencies returns what the REST server needs, health checks included
func (a *App) HTTPDependencies() api.Dependencies {
	return api.Dependencies{
		Processor: a.Processor,
		Results:   a.Results,
		Checks: map[string]api.HealthChecker{
			"database": pinger(a.DB.Health),
			"archive":  a.Archive,
		},
	}
}

type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

// Close releases every connection, newest first
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
