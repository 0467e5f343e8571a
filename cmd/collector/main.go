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
	"github.com/renealejo96/weatherlink-dashboard/internal/adapter/weatherlink"
	"github.com/renealejo96/weatherlink-dashboard/internal/collector"
	"github.com/renealejo96/weatherlink-dashboard/internal/config"
	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireStations(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	pollers := make([]collector.StationPoller, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		client := weatherlink.NewClient(domain.StationMeta{
			Key:  st.Key,
			Name: st.Name,
			ID:   st.ID,
		}, st.APIKey, st.APISecret, cfg.WeatherLinkTimeout, logger)
		pollers = append(pollers, client)
	}

	writer := kafkaadapter.NewWriter(cfg, logger)

	c := collector.New(pollers, writer, cfg.PollInterval, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, c, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := c.Run(ctx); err != nil {
			logger.Error("collector error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
