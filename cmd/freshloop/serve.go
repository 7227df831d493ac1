package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/metrics"
	"github.com/freshloop/freshloop/internal/service"
	"github.com/freshloop/freshloop/internal/store"
	"github.com/freshloop/freshloop/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

A missing model credential for the selected LLM_BACKEND is fatal. An empty
DB_PATH runs without a post store; help messages are then kept in memory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	gen, err := newGenerator(ctx, a.cfg, a.logger)
	if err != nil {
		a.logger.Error("failed to initialize text generator", "backend", a.cfg.LLMBackend, "error", err)
		return err
	}
	engine, err := newEngine(gen, a.cfg, a.logger)
	if err != nil {
		return err
	}

	var (
		matches *service.MatchService
		help    *service.HelpService
		mode    = domain.MatchMode(a.cfg.MatchMode)
	)
	if a.db != nil {
		matches = service.NewMatchService(engine, store.NewPostStore(a.db), mode, a.logger)
		help = service.NewHelpService(gen, store.NewHelpStore(a.db), a.cfg.MatchTimeout, a.logger)
	} else {
		a.logger.Warn("DB_PATH not set, running without a post store")
		matches = service.NewMatchService(engine, nil, mode, a.logger)
		help = service.NewHelpService(gen, store.NewMemoryHelpStore(), a.cfg.MatchTimeout, a.logger)
	}

	metrics.InitMetrics()
	server := web.NewServer(matches, help, web.Options{
		CORSAllowOrigins: a.cfg.CORSAllowOrigins,
		RateLimitPerMin:  a.cfg.RateLimitPerMin,
		MaxBodyBytes:     a.cfg.MaxBodyBytes,
		RequestTimeout:   a.cfg.RequestTimeout,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, a.cfg.ListenAddr)
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("server error", "error", err)
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
