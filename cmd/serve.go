package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediassist/db"
	"mediassist/inference"
	"mediassist/monitoring"
	"mediassist/protocol"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer newline-delimited JSON requests from stdin until EOF",
		Long: "serve loads the model once and answers one JSON request per input line with one JSON " +
			"response per output line. With serve.watch enabled the model is reloaded when its files change.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return startupFailure(cmd, err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return startupFailure(cmd, err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetricsCollector()
	var cached *inference.CachedPredictor

	store := cfg.ArtifactStore()
	reloader, err := inference.NewReloader(store.ModelPath(), store.ColumnsPath(), logger, func(*inference.Engine) {
		metrics.IncCounter(monitoring.MetricModelReloads)
		if cached != nil {
			cached.Purge()
		}
	})
	if err != nil {
		logger.Error("failed to load model", zap.Error(err))
		return startupFailure(cmd, err)
	}

	var predictor inference.Predictor = reloader
	if cfg.Serve.CacheSize > 0 {
		cached, err = inference.NewCachedPredictor(reloader, cfg.Serve.CacheSize)
		if err != nil {
			return startupFailure(cmd, err)
		}
		predictor = cached
	}

	opts := []protocol.Option{protocol.WithLogger(logger), protocol.WithMetrics(metrics)}
	if cfg.Database.Path != "" {
		history, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("prediction history disabled", zap.Error(err))
		} else {
			defer history.Close()
			opts = append(opts, protocol.WithRecorder(history))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serve.Watch {
		go func() {
			if err := reloader.Watch(ctx); err != nil {
				logger.Warn("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("serving predictions",
		zap.Int("features", reloader.Engine().Schema().Len()),
		zap.Int("classes", len(reloader.Engine().Classes())),
		zap.Int("cache_size", cfg.Serve.CacheSize),
		zap.Bool("watch", cfg.Serve.Watch))

	handler := protocol.NewHandler(predictor, opts...)
	done := make(chan error, 1)
	go func() {
		done <- handler.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	// A blocked stdin read does not observe ctx, so shutdown does not wait for it.
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if cached != nil {
		hits, misses := cached.Stats()
		metrics.SetCounter(monitoring.MetricCacheHits, float64(hits))
		metrics.SetCounter(monitoring.MetricCacheMisses, float64(misses))
	}
	metrics.LogSummary(logger)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
