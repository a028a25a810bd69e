package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/kv/sqlite"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/orchestrator"
)

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *sqlite.Store
	orch   *orchestrator.Orchestrator
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(ctx, cfg, store, orchestrator.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, orch: orch}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.store.Close()
}
