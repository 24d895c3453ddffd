package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danabrams/codegen/internal/completion"
	"github.com/danabrams/codegen/internal/config"
	"github.com/danabrams/codegen/internal/kv"
	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/metrics"
	"github.com/danabrams/codegen/internal/runner"
	"github.com/danabrams/codegen/internal/session"
	"github.com/danabrams/codegen/internal/settings"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg     *config.Config
	store   kv.Store
	manager *manager.Manager
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// loadConfig reads configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logging.Init(cfg.Log.Logging())
	return cfg, nil
}

// openStore opens the configured key-value backend, creating the SQLite
// directory when needed.
func openStore(cfg *config.Config) (kv.Store, error) {
	if cfg.Storage.Backend == kv.BackendSQLite || cfg.Storage.Backend == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	s, err := kv.Open(cfg.Storage.KV())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logging.Debug().Str("backend", cfg.Storage.Backend).Msg("storage opened")
	return s, nil
}

// openApp wires config, storage, completion client and manager, then
// initializes the manager.
func openApp(ctx context.Context, renderer manager.Renderer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	metrics.Init()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	client := completion.NewClient(completion.WithTimeout(cfg.Completion.Timeout()))
	defaults := settings.Defaults{BaseURL: cfg.Completion.BaseURL, Model: cfg.Completion.Model}

	opts := []manager.Option{}
	if renderer != nil {
		opts = append(opts, manager.WithRenderer(renderer))
	}
	m := manager.New(session.NewStore(store), settings.NewStore(store, defaults), client, opts...)
	if err := m.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	return &app{cfg: cfg, store: store, manager: m}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newRunner returns a code runner, or nil with a warning when node is not
// installed.
func newRunner(cfg *config.Config) *runner.Runner {
	r, err := runner.New(runner.Config{
		BinaryPath: cfg.Runner.NodePath,
		Timeout:    cfg.Runner.Timeout(),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("code execution disabled")
		return nil
	}
	logging.Info().Str("node", r.Binary()).Msg("using node binary")
	return r
}
