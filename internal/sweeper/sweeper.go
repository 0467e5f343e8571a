// Package sweeper reconciles persisted rain events against ground truth.
// The streaming path closes events optimistically from its own in-memory
// view; if that process crashes mid-event, the event stays active forever.
// The sweeper runs on its own schedule, stateless across restarts, and
// force-closes events whose counter has demonstrably gone flat, bounding
// how stale any open event can get to one sweep interval.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
)

// EventStore is the slice of the store gateway the sweeper needs.
type EventStore interface {
	ListActiveEvents(ctx context.Context) ([]domain.RainEvent, error)
	LatestRainSamples(ctx context.Context, stationKey string, limit int) ([]domain.RainSample, error)
	CloseEventByID(ctx context.Context, id int64, patch domain.EventPatch) error
}

// Config holds the sweep schedule and close criteria.
type Config struct {
	// Interval is how often a sweep runs.
	Interval time.Duration
	// Timeout is how long an event must go without an update before it is
	// eligible for closing.
	Timeout time.Duration
	// ThresholdMM matches the stream's start threshold: a fresh increment at
	// or above it means rain is still falling.
	ThresholdMM float64
}

// Sweeper closes abandoned rain events.
type Sweeper struct {
	store   EventStore
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	swept   atomic.Bool
}

// New creates a Sweeper.
func New(store EventStore, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		store:   store,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once at least one sweep has completed.
func (s *Sweeper) CheckReadiness(_ context.Context) error {
	if !s.swept.Load() {
		return errors.New("no sweep completed yet")
	}
	return nil
}

// Run sweeps immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started",
		"interval", s.cfg.Interval,
		"timeout", s.cfg.Timeout,
		"threshold_mm", s.cfg.ThresholdMM,
	)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	closed, err := s.SweepOnce(ctx)
	if err != nil {
		// Transient store trouble: skip this cycle, the next tick retries.
		s.logger.Error("sweep failed", "error", err)
		return
	}
	s.swept.Store(true)
	s.metrics.SweepRuns.Inc()
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if closed > 0 {
		s.logger.Info("sweep closed events", "closed", closed)
	}
}

// SweepOnce inspects every active event and closes the ones whose station
// has verifiably stopped raining. It returns how many events it closed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	active, err := s.store.ListActiveEvents(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.ActiveEvents.Set(float64(len(active)))

	closed := 0
	for _, ev := range active {
		if s.sweepEvent(ctx, ev) {
			closed++
		}
	}
	return closed, nil
}

// sweepEvent decides one event. Two guards, in order:
//
//  1. Ground truth: if the station's latest two raw readings show an
//     increment at or above the threshold, rain is still falling: do not
//     close, even if updated_at is ancient. The owning stream process may
//     be behind rather than dead.
//  2. Staleness: only close once updated_at is older than the timeout.
//
// The close recomputes rain_accumulated from the latest real reading rather
// than trusting the stored figure, and backdates event_end to the last
// update, so duration reflects actual rain.
func (s *Sweeper) sweepEvent(ctx context.Context, ev domain.RainEvent) bool {
	now := s.clock.Now()
	lastUpdate := ev.UpdatedAt
	if lastUpdate.IsZero() {
		lastUpdate = ev.EventStart
	}

	samples, err := s.store.LatestRainSamples(ctx, ev.StationKey, 2)
	if err != nil {
		s.logger.Warn("could not fetch rain samples, skipping event",
			"error", err, "station_key", ev.StationKey, "event_id", ev.ID)
		return false
	}

	var latest *float64
	if len(samples) > 0 {
		latest = samples[0].RainMM
	}
	if len(samples) > 1 && latest != nil && samples[1].RainMM != nil {
		if *latest-*samples[1].RainMM >= s.cfg.ThresholdMM {
			s.logger.Debug("rain still active, leaving event open",
				"station_key", ev.StationKey, "event_id", ev.ID)
			return false
		}
	}

	if now.Sub(lastUpdate) < s.cfg.Timeout {
		return false
	}

	accumulated := ev.RainAccumulated
	if latest != nil {
		accumulated = math.Round((*latest-ev.RainAtStart)*100) / 100
	}
	duration := int(lastUpdate.Sub(ev.EventStart).Minutes())

	patch := domain.EventPatch{
		IsActive:        domain.Bool(false),
		EventEnd:        domain.Time(lastUpdate),
		RainAtEnd:       latest,
		RainAccumulated: domain.Float(accumulated),
		DurationMinutes: domain.Int(duration),
		UpdatedAt:       domain.Time(now),
	}
	if err := s.store.CloseEventByID(ctx, ev.ID, patch); err != nil {
		s.logger.Error("force-close failed",
			"error", err, "station_key", ev.StationKey, "event_id", ev.ID)
		return false
	}

	s.metrics.EventsClosed.WithLabelValues("sweeper").Inc()
	s.logger.Info("force-closed stale rain event",
		"station_key", ev.StationKey,
		"event_id", ev.ID,
		"rain_accumulated", accumulated,
		"duration_minutes", duration,
	)
	return true
}
