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
	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/store"
	"github.com/renealejo96/weatherlink-dashboard/internal/config"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
	"github.com/renealejo96/weatherlink-dashboard/internal/sweeper"
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

	s := sweeper.New(storeClient, sweeper.Config{
		Interval:    cfg.SweepInterval,
		Timeout:     cfg.SweepTimeout,
		ThresholdMM: cfg.RainStartThresholdMM,
	}, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, s, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := s.Run(ctx); err != nil {
			logger.Error("sweeper error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
