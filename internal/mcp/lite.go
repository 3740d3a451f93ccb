package mcp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/cache"
	"github.com/ibh-daai/bone-mineral-density/internal/config"
	"github.com/ibh-daai/bone-mineral-density/internal/domain"
	"github.com/ibh-daai/bone-mineral-density/internal/repository"
	"github.com/ibh-daai/bone-mineral-density/internal/results"
	"github.com/ibh-daai/bone-mineral-density/internal/service"
)

// LiteOption is a functional option for NewLiteServer.
type LiteOption func(*liteBuild) error

type liteBuild struct {
	logger  *logrus.Logger
	results results.Store
}

// WithResultStore sets a custom result store.
func WithResultStore(store results.Store) LiteOption {
	return func(b *liteBuild) error {
		b.results = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteOption {
	return func(b *liteBuild) error {
		b.logger = logger
		return nil
	}
}

// NewLiteServer creates an MCP server that needs no external services.
// Measurements live in memory for the life of the process and results are
// kept in SQLite under cfg.DataDir. Generated reports are never sent.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteOption) (*Server, error) {
	// stdout carries the MCP stream
	logger, err := config.NewLogger(domain.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return nil, err
	}
	b := &liteBuild{logger: logger}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var closers []func() error
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}
	if b.results == nil {
		store, err := results.NewSQLiteStore(cfg.ResultsDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create result store: %w", err)
		}
		b.results = store
		closers = append(closers, store.Close)
	}

	var redisTracker *cache.RedisTracker
	if cfg.RedisURL != "" {
		rt, err := cache.NewRedisTracker(domain.CacheConfig{RedisURL: cfg.RedisURL, DefaultTTL: cfg.CacheTTL})
		if err != nil {
			b.logger.WithError(err).Warn("Redis unavailable, tracking processed reports in memory only")
		} else {
			redisTracker = rt
		}
	}
	tracker, err := cache.NewTracker(cfg.CacheMaxItems, redisTracker, b.logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create tracker: %w", err))
	}
	closers = append(closers, tracker.Close)

	tables, err := service.DefaultReferenceTables()
	if err != nil {
		return fail(fmt.Errorf("failed to load reference tables: %w", err))
	}

	repo := repository.NewMemoryRepository()
	interpreter := service.NewBoneDensityInterpreter(b.logger, repo, tables, service.EngineOptions{
		RecordZeroHipChange: cfg.RecordZeroHipChange,
	})
	processor := service.NewStudyProcessor(b.logger, service.ProcessorDependencies{
		Repository:  repo,
		Interpreter: interpreter,
		Results:     b.results,
		Tracker:     tracker,
	})

	tools := NewTools(b.logger, processor, tables, b.results, cfg.ExportDir())
	server := NewServer(domain.MCPConfig{}, tools, b.logger)
	for _, c := range closers {
		server.onClose(c)
	}

	b.logger.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"redis":    redisTracker != nil,
	}).Info("Lite MCP server initialized")
	return server, nil
}
