// Package pipeline runs the streaming side of rain-event detection: it
// drains micro-batches of raw readings from the transport, persists them,
// and drives the per-station state machine, applying the resulting store
// operations through the event gateway.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
	"github.com/renealejo96/weatherlink-dashboard/internal/rainevent"
)

// BatchExtractor reads up to batchSize raw messages from the transport.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// EventStore is the slice of the store gateway the pipeline needs.
type EventStore interface {
	CreateEvent(ctx context.Context, ev domain.RainEvent) (domain.RainEvent, error)
	UpdateActiveEvent(ctx context.Context, stationKey string, patch domain.EventPatch) (bool, error)
	CloseActiveEvent(ctx context.Context, stationKey string, patch domain.EventPatch) (bool, error)
	ListActiveEvents(ctx context.Context) ([]domain.RainEvent, error)
	InsertReadings(ctx context.Context, readings []domain.Reading) error
}

// Pipeline orchestrates the consume-detect-persist loop.
type Pipeline struct {
	extractor BatchExtractor
	store     EventStore
	machine   *rainevent.Machine
	tracker   *rainevent.Tracker
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, s EventStore, m *rainevent.Machine, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		store:     s,
		machine:   m,
		tracker:   rainevent.NewTracker(),
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has processed at least one
// batch, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any readings yet")
	}
	return nil
}

// Rehydrate rebuilds per-station state from the store's active events so a
// restart does not orphan open events. Failure is non-fatal: the sweeper
// remains the second line of defense, and stations re-initialize lazily
// from their next reading.
func (p *Pipeline) Rehydrate(ctx context.Context) {
	active, err := p.store.ListActiveEvents(ctx)
	if err != nil {
		p.logger.Warn("rehydrate skipped, could not list active events", "error", err)
		return
	}
	p.tracker.Rehydrate(active)
	p.logger.Info("state rehydrated", "active_events", len(active), "stations", p.tracker.Len())
}

// Run executes the consume loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.Rehydrate(ctx)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during broker
	// outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-detect-persist cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ReadingsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	readings := p.decodeBatch(rawBatch)
	p.persistReadings(ctx, readings)

	for i := range readings {
		p.advance(ctx, readings[i])
	}
	p.metrics.StationsKnown.Set(float64(p.tracker.Len()))

	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// decodeBatch unmarshals raw messages into canonical readings. A message
// that does not decode is logged and dropped; its offset is still committed
// with the rest of the batch, so a poison message cannot wedge its
// partition.
func (p *Pipeline) decodeBatch(rawBatch []domain.RawMessage) []domain.Reading {
	readings := make([]domain.Reading, 0, len(rawBatch))
	for _, raw := range rawBatch {
		var r domain.Reading
		if err := json.Unmarshal(raw.Value, &r); err != nil || r.StationKey == "" {
			p.logger.Warn("dropping undecodable reading",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ReadingsSkipped.Inc()
			continue
		}
		if r.EventTime.IsZero() {
			r.EventTime = raw.Timestamp
		}
		readings = append(readings, r)
	}
	return readings
}

// persistReadings appends the batch to the raw readings table. Failure is
// logged and skipped for this cycle; the in-memory state machine is always
// more current than the store, so nothing downstream waits on this write.
func (p *Pipeline) persistReadings(ctx context.Context, readings []domain.Reading) {
	if len(readings) == 0 {
		return
	}
	if err := p.store.InsertReadings(ctx, readings); err != nil {
		p.logger.Error("persist readings failed", "error", err, "count", len(readings))
		p.metrics.StoreErrors.Inc()
		return
	}
	p.metrics.ReadingsStored.Add(float64(len(readings)))
}

// advance feeds one reading through the station's state machine and applies
// whatever store operations the transition produced. Readings without a
// usable rainfall counter skip event detection but have already been
// persisted with their other metrics intact.
func (p *Pipeline) advance(ctx context.Context, reading domain.Reading) {
	if !reading.HasRain() {
		p.metrics.ReadingsSkipped.Inc()
		return
	}

	state, ops := p.machine.Advance(p.tracker.Get(reading.StationKey), reading)
	p.tracker.Put(reading.StationKey, state)

	for _, op := range ops {
		p.applyOp(ctx, op, reading)
	}
}

func (p *Pipeline) applyOp(ctx context.Context, op rainevent.Op, reading domain.Reading) {
	switch op.Kind {
	case rainevent.OpOpen:
		created, err := p.store.CreateEvent(ctx, op.Event)
		if err != nil {
			// The event lives on in memory; if the row never materialized,
			// the next update's zero-match resets us cleanly.
			p.logger.Error("open event failed", "error", err, "station_key", op.StationKey)
			p.metrics.StoreErrors.Inc()
			return
		}
		p.metrics.EventsOpened.Inc()
		p.logger.Info("rain event opened",
			"station_key", op.StationKey,
			"station_name", reading.StationName,
			"rain_at_start", op.Event.RainAtStart,
			"first_increment_mm", op.Event.RainAccumulated,
		)
		if created.ID != 0 {
			if st := p.tracker.Get(op.StationKey); st != nil {
				st.EventID = created.ID
				p.tracker.Put(op.StationKey, *st)
			}
		}

	case rainevent.OpUpdate:
		matched, err := p.store.UpdateActiveEvent(ctx, op.StationKey, op.Patch)
		if err != nil {
			// Retried implicitly: the next increment writes a fresher patch.
			p.logger.Error("update event failed", "error", err, "station_key", op.StationKey)
			p.metrics.StoreErrors.Inc()
			return
		}
		if !matched {
			p.resetStation(op.StationKey, reading)
			return
		}
		p.metrics.EventsUpdated.Inc()

	case rainevent.OpClose:
		matched, err := p.store.CloseActiveEvent(ctx, op.StationKey, op.Patch)
		if err != nil {
			p.logger.Error("close event failed", "error", err, "station_key", op.StationKey)
			p.metrics.StoreErrors.Inc()
			return
		}
		if !matched {
			p.logger.Info("event already closed elsewhere", "station_key", op.StationKey)
			return
		}
		p.metrics.EventsClosed.WithLabelValues("stream").Inc()
		p.logger.Info("rain event closed",
			"station_key", op.StationKey,
			"rain_accumulated", deref(op.Patch.RainAccumulated),
			"duration_minutes", derefInt(op.Patch.DurationMinutes),
		)
	}
}

// resetStation re-initializes in-memory state after the store reported no
// active row: a concurrent closer (usually the sweeper) won the race, and
// pretending the event is still open would corrupt the next accumulation.
func (p *Pipeline) resetStation(stationKey string, reading domain.Reading) {
	p.logger.Info("active event gone, resetting station state", "station_key", stationKey)
	p.tracker.Put(stationKey, p.machine.Fresh(*reading.RainMM))
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should
// stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
