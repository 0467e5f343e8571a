// Package webapi serves the dashboard-facing REST API: rain-event history,
// currently active events, and accumulated-rainfall summaries.
package webapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/report"
)

// EventStore is the slice of the store gateway the API reads from.
type EventStore interface {
	ListEvents(ctx context.Context, stationKey string, limit int) ([]domain.RainEvent, error)
	ListActiveEvents(ctx context.Context) ([]domain.RainEvent, error)
	ListEventsSince(ctx context.Context, since time.Time, limit int) ([]domain.RainEvent, error)
}

// Config holds the API server settings.
type Config struct {
	Addr string
	// HistoryLimit caps how many events a history query returns by default.
	HistoryLimit int
	// AccumulationWeeks is the default lookback for accumulation summaries.
	AccumulationWeeks int
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg    Config
	store  EventStore
	logger *slog.Logger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg Config, store EventStore, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	server := &Server{cfg: cfg, store: store, logger: logger, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}

	s.logger.Info("api server starting", "addr", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1")
	v1.GET("/rain/events", s.handleListEvents)
	v1.GET("/rain/events/active", s.handleActiveEvents)
	v1.GET("/rain/accumulated", s.handleAccumulated)
	v1.GET("/rain/accumulated/export", s.handleAccumulatedExport)
}

func (s *Server) handleListEvents(c *gin.Context) {
	stationKey := c.Query("station")

	limit := s.cfg.HistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := s.store.ListEvents(ctx, stationKey, limit)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handleActiveEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := s.store.ListActiveEvents(ctx)
	if err != nil {
		s.logger.Error("list active events failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handleAccumulated(c *gin.Context) {
	acc, err := s.accumulate(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) handleAccumulatedExport(c *gin.Context) {
	acc, err := s.accumulate(c)
	if err != nil {
		return
	}

	data, err := report.BuildAccumulationXLSX(acc)
	if err != nil {
		s.logger.Error("accumulation export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="rain_accumulation.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// accumulate resolves the lookback window, fetches the events, and groups
// them. On error it has already written the HTTP response.
func (s *Server) accumulate(c *gin.Context) (report.Accumulation, error) {
	weeks := s.cfg.AccumulationWeeks
	if weeksStr := c.Query("weeks"); weeksStr != "" {
		parsed, err := strconv.Atoi(weeksStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weeks"})
			return report.Accumulation{}, errors.New("invalid weeks")
		}
		weeks = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(weeks) * 7 * 24 * time.Hour)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	events, err := s.store.ListEventsSince(ctx, since, 0)
	if err != nil {
		s.logger.Error("list events since failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return report.Accumulation{}, err
	}

	return report.Accumulate(events), nil
}
