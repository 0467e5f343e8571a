package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/renealejo96/weatherlink-dashboard/internal/adapter/http"
	kafkaadapter "github.com/renealejo96/weatherlink-dashboard/internal/adapter/kafka"
	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/store"
	"github.com/renealejo96/weatherlink-dashboard/internal/config"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
	"github.com/renealejo96/weatherlink-dashboard/internal/pipeline"
	"github.com/renealejo96/weatherlink-dashboard/internal/rainevent"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	storeClient := store.New(store.Config{
		BaseURL: cfg.StoreURL,
		APIKey:  cfg.StoreAPIKey,
		Timeout: cfg.StoreTimeout,
	}, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	machine := rainevent.NewMachine(rainevent.Config{
		StartThresholdMM: cfg.RainStartThresholdMM,
		NoRainTimeout:    cfg.NoRainTimeout,
	}, clockwork.NewRealClock())

	p := pipeline.New(reader, storeClient, machine, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}

	logger.Info("shutdown complete")
}
