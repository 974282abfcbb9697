package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/energy-weather-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/energy-weather-etl/internal/adapter/kafka"
	parquetadapter "github.com/couchcryptid/energy-weather-etl/internal/adapter/parquet"
	"github.com/couchcryptid/energy-weather-etl/internal/adapter/source"
	"github.com/couchcryptid/energy-weather-etl/internal/adapter/stdout"
	"github.com/couchcryptid/energy-weather-etl/internal/config"
	"github.com/couchcryptid/energy-weather-etl/internal/observability"
	"github.com/couchcryptid/energy-weather-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := source.NewClient(source.Options{
		Timeout:    cfg.FetchTimeout,
		RetryCount: cfg.FetchRetryCount,
	}, metrics, logger)
	prices := source.NewPriceSource(client, cfg.PriceURL, cfg.FetchRateLimit, logger)
	weather := source.NewWeatherSource(client, cfg.WeatherURL, cfg.FetchRateLimit, logger)

	opts := pipeline.Options{ParallelFetch: cfg.ParallelFetch}

	var (
		p      *pipeline.Pipeline
		closer func() error
	)
	switch cfg.SinkMode {
	case config.SinkPersist:
		writer, err := parquetadapter.NewWriter(cfg.OutputDir, metrics, logger)
		if err != nil {
			logger.Error("failed to prepare output dir", "error", err, "dir", cfg.OutputDir)
			os.Exit(1)
		}
		p = pipeline.NewPersisting(prices, weather, writer, logger, metrics, opts)
	case config.SinkKafka:
		writer := kafkaadapter.NewWriter(cfg, logger)
		closer = writer.Close
		p = pipeline.NewMerging(prices, weather, writer, logger, metrics, opts)
	default:
		p = pipeline.NewMerging(prices, weather, stdout.NewPrinter(os.Stdout), logger, metrics, opts)
	}
	logger.Info("sink selected", "mode", cfg.SinkMode, "parallel_fetch", cfg.ParallelFetch)

	scheduler := pipeline.NewScheduler(p, pipeline.SchedulerConfig{
		Interval:  cfg.CycleInterval,
		MaxCycles: cfg.MaxCycles,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, scheduler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduling loop.
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		scheduler.Stop()
	case <-scheduler.Done():
		logger.Info("scheduler finished", "state", scheduler.State(), "cycles", scheduler.Completed())
		if scheduler.State() == pipeline.StateCrashed {
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := client.Close(); err != nil {
		logger.Error("source client close error", "error", err)
	}
	if closer != nil {
		if err := closer(); err != nil {
			logger.Error("sink close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		cancel()
		stop()
		os.Exit(exitCode)
	}
}
