// Package rainevent turns a per-station stream of cumulative rainfall
// counter readings into bounded rain events: an event opens on the first
// counter increment at or above the start threshold, accumulates while
// increments keep arriving, and closes once the counter has been flat for
// the no-rain timeout. The sensor never signals "rain stopped"; the end of
// an event is inferred purely from the absence of increments.
package rainevent

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

// Config holds the detection thresholds. Both are operator-tunable.
type Config struct {
	// StartThresholdMM is the minimum counter increment that opens an event.
	StartThresholdMM float64
	// NoRainTimeout is how long the counter must stay flat before an active
	// event is considered over.
	NoRainTimeout time.Duration
}

// DefaultConfig mirrors the production defaults: 0.1 mm to open, 30 minutes
// of silence to close.
func DefaultConfig() Config {
	return Config{
		StartThresholdMM: 0.1,
		NoRainTimeout:    30 * time.Minute,
	}
}

// State is the per-station bookkeeping between readings.
//
// Invariant: IsActive is true iff EventID refers to the single active row
// the store holds for this station. While active, LastUpdate is the time of
// the last reading processed, whether or not its counter moved; the timeout
// therefore measures the gap between consecutive readings, and a close
// backdates the event end to the reading before the gap.
type State struct {
	IsActive     bool
	EventID      int64
	EventStart   time.Time
	RainAtStart  float64
	LastRain     float64
	LastUpdate   time.Time
	MaxIntensity float64
}

// OpKind discriminates the store operations emitted by Advance.
type OpKind string

const (
	OpOpen   OpKind = "open"
	OpUpdate OpKind = "update"
	OpClose  OpKind = "close"
)

// Op is one store write requested by a state transition. Open carries a full
// event row; Update and Close carry a patch applied to the station's active
// row.
type Op struct {
	Kind       OpKind
	StationKey string
	Event      domain.RainEvent
	Patch      domain.EventPatch
}

// Machine evaluates state transitions. It holds no per-station state itself;
// callers keep that in a Tracker and feed it back in, which makes Advance a
// pure function of (state, reading, clock) and trivially testable.
type Machine struct {
	cfg   Config
	clock clockwork.Clock
}

// NewMachine creates a Machine. Pass clockwork.NewRealClock() in production.
func NewMachine(cfg Config, clock clockwork.Clock) *Machine {
	return &Machine{cfg: cfg, clock: clock}
}

// Fresh returns the idle state for a station whose counter currently reads
// rain. Used for the first reading of a station and after a concurrent
// closer invalidated the in-memory state.
func (m *Machine) Fresh(rain float64) State {
	return State{
		RainAtStart: rain,
		LastRain:    rain,
		LastUpdate:  m.clock.Now(),
	}
}

// Advance applies one reading to a station's state and returns the next
// state plus the store operations the transition requires. A nil state means
// this is the first reading ever seen for the station: it only initializes
// the baseline, since there is no prior counter value to diff against.
//
// Timeout decisions use the wall clock, not event-stream time: readings in a
// micro-batch are assumed reasonably contemporaneous, and closing is judged
// by how long this process has gone without seeing an increment.
func (m *Machine) Advance(st *State, reading domain.Reading) (State, []Op) {
	now := m.clock.Now()
	rain := *reading.RainMM

	if st == nil {
		return m.Fresh(rain), nil
	}

	next := *st
	increment := rain - next.LastRain

	if increment < 0 {
		// Counter reset, e.g. the sensor's local-midnight rollover. Rebase
		// the baseline to the new counter value so the next positive
		// increment diffs correctly, and shift RainAtStart so the depth
		// accumulated before the reset is preserved. The reset itself is a
		// zero increment as far as the timeout clock is concerned.
		if next.IsActive {
			next.RainAtStart = rain - (next.LastRain - next.RainAtStart)
		}
		next.LastRain = rain
		increment = 0
	}

	switch {
	case !next.IsActive && increment >= m.cfg.StartThresholdMM:
		// Anchor the event to the counter value before the jump, so the
		// accumulated depth includes the increment that opened it.
		next.IsActive = true
		next.EventID = 0
		next.EventStart = now
		next.RainAtStart = next.LastRain
		next.MaxIntensity = increment
		next.LastRain = rain
		next.LastUpdate = now
		return next, []Op{{
			Kind:       OpOpen,
			StationKey: reading.StationKey,
			Event: domain.RainEvent{
				StationKey:      reading.StationKey,
				StationName:     reading.StationName,
				EventStart:      next.EventStart,
				IsActive:        true,
				RainAtStart:     next.RainAtStart,
				RainAccumulated: round2(increment),
				MaxIntensity:    increment,
				UpdatedAt:       now,
			},
		}}

	case next.IsActive && increment > 0:
		if increment > next.MaxIntensity {
			next.MaxIntensity = increment
		}
		accumulated := round2(rain - next.RainAtStart)
		duration := int(now.Sub(next.EventStart).Minutes())
		next.LastRain = rain
		next.LastUpdate = now
		return next, []Op{{
			Kind:       OpUpdate,
			StationKey: reading.StationKey,
			Patch: domain.EventPatch{
				RainAccumulated: domain.Float(accumulated),
				RainAtEnd:       domain.Float(rain),
				MaxIntensity:    domain.Float(next.MaxIntensity),
				DurationMinutes: domain.Int(duration),
				UpdatedAt:       domain.Time(now),
			},
		}}

	case next.IsActive && now.Sub(next.LastUpdate) >= m.cfg.NoRainTimeout:
		// The counter has been flat for a full timeout since the previous
		// reading. Backdate the end to that reading so duration reflects
		// rain, not detection lag.
		endAt := next.LastUpdate
		accumulated := round2(rain - next.RainAtStart)
		duration := int(endAt.Sub(next.EventStart).Minutes())
		closed := []Op{{
			Kind:       OpClose,
			StationKey: reading.StationKey,
			Patch: domain.EventPatch{
				IsActive:        domain.Bool(false),
				EventEnd:        domain.Time(endAt),
				RainAtEnd:       domain.Float(rain),
				RainAccumulated: domain.Float(accumulated),
				DurationMinutes: domain.Int(duration),
				UpdatedAt:       domain.Time(now),
			},
		}}
		return m.Fresh(rain), closed

	default:
		// Idle with a sub-threshold increment, or active and waiting out the
		// timeout. Track the counter but write nothing. LastUpdate advances
		// on every reading so that a later close lands on the last reading
		// seen before the silence, not on the last increment.
		next.LastRain = rain
		next.LastUpdate = now
		return next, nil
	}
}

// round2 keeps accumulation figures at sensor resolution; the counters only
// move in hundredths of a millimeter and float drift should not reach the
// store.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
