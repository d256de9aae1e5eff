package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/usecase/reindex"
	"github.com/kailas-cloud/ragdex/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search over the latest published index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", flagEnv),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("corpus_driver", cfg.Corpus.Driver),
		zap.String("lock_driver", cfg.Reindex.LockDriver),
	)

	// Register index metrics explicitly (no init())
	metrics.RegisterIndexMetrics()

	rt, base, err := a.runtime()
	if err != nil {
		return err
	}
	artifactSync, err := a.syncer()
	if err != nil {
		return err
	}
	coord, err := a.coordinator()
	if err != nil {
		return err
	}

	// Pass nil interface (not typed nil pointer) when Redis is not configured.
	var pinger healthuc.DBPinger
	if cfg.NeedsDatabase() {
		store, err := a.database()
		if err != nil {
			return err
		}
		pinger = store
	}
	healthSvc := healthuc.New(rt, pinger, newEmbeddingHealthChecker(base))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if res, err := artifactSync.Sync(ctx); err != nil {
		logger.Warn("Initial artifact sync failed", zap.Error(err))
	} else {
		logger.Info("Initial artifact sync",
			zap.String("status", string(res.Status)),
			zap.String("revision", res.Revision),
		)
	}
	if err := rt.EnsureLoaded(); err != nil {
		logger.Warn("Index not loaded", zap.Error(err))
	}

	var wg sync.WaitGroup
	if cfg.Index.SyncIntervalSec > 0 {
		wg.Go(func() { artifactSync.Run(ctx, config.Seconds(cfg.Index.SyncIntervalSec)) })
	}
	sched := reindex.NewScheduler(coord, config.Seconds(cfg.Reindex.EverySec), logger.Named("scheduler"))
	if sched.Enabled() {
		wg.Go(func() { sched.Run(ctx) })
	}

	var tokens []string
	if cfg.Auth.ReindexToken != "" {
		tokens = []string{cfg.Auth.ReindexToken}
	}
	server := chiTransport.NewServer(rt, coord, coord.Log(), healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(tokens),
		ReadTimeout:  config.Seconds(cfg.HTTP.ReadTimeoutSec),
		WriteTimeout: config.Seconds(cfg.HTTP.WriteTimeoutSec),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.HTTP.ShutdownSec))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server stopped gracefully")
	return nil
}
