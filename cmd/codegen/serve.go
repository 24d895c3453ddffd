package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danabrams/codegen/internal/api"
	"github.com/danabrams/codegen/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the codegen server",
	Long:  `Start the HTTP and websocket server with the configured settings.`,
	RunE:  runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	a, err := openApp(ctx, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Server.APIKey == "" {
		logging.Warn().Msg("server API key not configured, /api is unauthenticated; set CODEGEN_SERVER_API_KEY or 'codegen config set server.api_key <key>'")
	}
	port := a.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	var r api.Runner
	if nr := newRunner(a.cfg); nr != nil {
		r = nr
	}

	srv := api.New(api.Config{
		Port:           port,
		APIKey:         a.cfg.Server.APIKey,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		TurnsPerSecond: a.cfg.Server.TurnsPerSecond,
		TurnBurst:      a.cfg.Server.TurnBurst,
	}, a.manager, hub, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
