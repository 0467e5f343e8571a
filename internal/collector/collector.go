// Package collector polls the vendor API for every configured station and
// publishes the normalized readings to the raw topic. It is the only part of
// the system that holds vendor credentials; everything downstream consumes
// the canonical stream.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
)

// StationPoller fetches the latest reading for one station.
type StationPoller interface {
	Station() domain.StationMeta
	CurrentConditions(ctx context.Context) (domain.Reading, bool, error)
}

// Publisher hands readings to the raw topic.
type Publisher interface {
	PublishReadings(ctx context.Context, readings []domain.Reading) error
}

// Collector drives the poll loop across stations.
type Collector struct {
	pollers   []StationPoller
	publisher Publisher
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	polled    atomic.Bool
}

// New creates a Collector.
func New(pollers []StationPoller, publisher Publisher, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Collector {
	return &Collector{
		pollers:   pollers,
		publisher: publisher,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one poll cycle has completed.
func (c *Collector) CheckReadiness(_ context.Context) error {
	if !c.polled.Load() {
		return errors.New("no poll cycle completed yet")
	}
	return nil
}

// Run polls immediately, then on every tick until the context is cancelled.
// A station failing its poll never blocks the others: each cycle visits
// every station and publishes whatever it got.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started",
		"stations", len(c.pollers),
		"poll_interval", c.interval,
	)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.pollAll(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// PollOnce runs a single poll cycle and returns how many readings it
// published.
func (c *Collector) PollOnce(ctx context.Context) int {
	var readings []domain.Reading
	for _, poller := range c.pollers {
		station := poller.Station()
		reading, ok, err := poller.CurrentConditions(ctx)
		if err != nil {
			c.metrics.PollErrors.Inc()
			c.logger.Error("station poll failed",
				"error", err, "station_key", station.Key)
			continue
		}
		if !ok {
			c.logger.Warn("station returned no weather sensor data",
				"station_key", station.Key)
			continue
		}
		readings = append(readings, reading)
	}

	if len(readings) > 0 {
		if err := c.publisher.PublishReadings(ctx, readings); err != nil {
			c.metrics.PublishErrors.Inc()
			c.logger.Error("publish failed", "error", err, "readings", len(readings))
			return 0
		}
		c.metrics.ReadingsPublished.Add(float64(len(readings)))
	}
	return len(readings)
}

func (c *Collector) pollAll(ctx context.Context) {
	published := c.PollOnce(ctx)
	c.polled.Store(true)
	c.logger.Debug("poll cycle complete",
		"stations", len(c.pollers), "published", published)
}
