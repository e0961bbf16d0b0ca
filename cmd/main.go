package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fastpartybox/internal/config"
	"fastpartybox/internal/offline"

	_ "fastpartybox/docs"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fastpartybox",
		Short:        "Billing and inventory node that keeps selling while offline",
		SilenceUsage: true,
	}
	serve := serveCmd()
	root.AddCommand(serve, syncCmd())
	root.RunE = serve.RunE
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func syncCmd() *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued offline orders to the remote store once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), users)
		},
	}
	cmd.Flags().StringSliceVar(&users, "user", nil, "user ids whose queues to drain")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setup(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.Close()

	httpServer := &http.Server{
		Addr:    a.cfg.Server.HTTPAddr,
		Handler: a.server().Engine(),
	}

	a.coord.Start(ctx, a.session)
	defer a.coord.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.monitor.Run(gctx)
	})
	g.Go(func() error {
		a.log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.log.Info("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		a.log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	return nil
}

// runSync loads each user's queue, drains them all once and fails if
// anything is left behind.
func runSync(parent context.Context, users []string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.Close()

	if !a.monitor.Probe(ctx) {
		return fmt.Errorf("remote store unreachable: %w", offline.ErrOffline)
	}

	for _, uid := range users {
		a.coord.Queue(ctx, uid)
	}
	results, drainErr := a.coord.DrainAll(ctx)

	left := 0
	for uid, res := range results {
		a.log.Info("Drained",
			zap.String("user_id", uid),
			zap.Strings("committed", res.Committed),
			zap.Strings("failed", res.Failed),
			zap.Int("pending", res.Pending),
		)
		left += res.Pending
	}
	if drainErr != nil {
		return drainErr
	}
	if left > 0 {
		return fmt.Errorf("%d orders still pending", left)
	}
	return nil
}
