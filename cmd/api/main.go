package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/store"
	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/webapi"
	"github.com/renealejo96/weatherlink-dashboard/internal/config"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	storeClient := store.New(store.Config{
		BaseURL: cfg.StoreURL,
		APIKey:  cfg.StoreAPIKey,
		Timeout: cfg.StoreTimeout,
	}, logger)

	srv := webapi.New(webapi.Config{
		Addr:              cfg.HTTPAddr,
		HistoryLimit:      cfg.EventHistoryLimit,
		AccumulationWeeks: cfg.AccumulationWeeks,
	}, storeClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("api server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
