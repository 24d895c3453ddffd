// Command codegen-server runs the codegen HTTP server without the CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danabrams/codegen/internal/api"
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

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "codegen-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(cfg.Log.Logging())
	metrics.Init()

	if cfg.Server.APIKey == "" {
		logging.Warn().Msg("server API key not configured, set CODEGEN_SERVER_API_KEY")
	}

	if cfg.Storage.Backend == kv.BackendSQLite || cfg.Storage.Backend == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := kv.Open(cfg.Storage.KV())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	client := completion.NewClient(completion.WithTimeout(cfg.Completion.Timeout()))
	defaults := settings.Defaults{BaseURL: cfg.Completion.BaseURL, Model: cfg.Completion.Model}
	m := manager.New(session.NewStore(store), settings.NewStore(store, defaults), client, manager.WithRenderer(hub))
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	var r api.Runner
	if nr, err := runner.New(runner.Config{BinaryPath: cfg.Runner.NodePath, Timeout: cfg.Runner.Timeout()}); err != nil {
		logging.Warn().Err(err).Msg("code execution disabled")
	} else {
		logging.Info().Str("node", nr.Binary()).Msg("using node binary")
		r = nr
	}

	srv := api.New(api.Config{
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.APIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TurnsPerSecond: cfg.Server.TurnsPerSecond,
		TurnBurst:      cfg.Server.TurnBurst,
	}, m, hub, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
