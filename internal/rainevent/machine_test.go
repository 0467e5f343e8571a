package rainevent_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/rainevent"
)

func newTestMachine(clock clockwork.Clock) *rainevent.Machine {
	return rainevent.NewMachine(rainevent.DefaultConfig(), clock)
}

func reading(station string, rainMM float64) domain.Reading {
	return domain.Reading{
		StationKey:  station,
		StationName: station,
		RainMM:      domain.Float(rainMM),
	}
}

func TestAdvance_FirstReadingInitializesBaseline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, ops := m.Advance(nil, reading("finca1", 12.4))

	assert.Empty(t, ops)
	assert.False(t, st.IsActive)
	assert.Equal(t, 12.4, st.LastRain)
}

func TestAdvance_OpensOnThresholdIncrement(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 0.0))
	clock.Advance(5 * time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 0.1))

	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpOpen, ops[0].Kind)
	assert.True(t, st.IsActive)
	assert.Equal(t, 0.0, ops[0].Event.RainAtStart)
	assert.Equal(t, 0.1, ops[0].Event.RainAccumulated)
	assert.Equal(t, clock.Now(), ops[0].Event.EventStart)
}

func TestAdvance_SubThresholdIncrementStaysIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 0.0))
	clock.Advance(5 * time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 0.099))

	assert.Empty(t, ops)
	assert.False(t, st.IsActive)
	assert.Equal(t, 0.099, st.LastRain)
}

func TestAdvance_UpdatesAccumulationWhileRaining(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 10.0))
	clock.Advance(5 * time.Minute)
	st, _ = m.Advance(&st, reading("finca1", 10.5))
	clock.Advance(5 * time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 11.2))

	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpUpdate, ops[0].Kind)
	patch := ops[0].Patch
	require.NotNil(t, patch.RainAccumulated)
	assert.InDelta(t, 1.2, *patch.RainAccumulated, 1e-9)
	require.NotNil(t, patch.RainAtEnd)
	assert.Equal(t, 11.2, *patch.RainAtEnd)
	require.NotNil(t, patch.DurationMinutes)
	assert.Equal(t, 5, *patch.DurationMinutes)
	assert.InDelta(t, 0.7, st.MaxIntensity, 1e-9)
}

func TestAdvance_MaxIntensityKeepsLargestIncrement(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 0.0))
	clock.Advance(time.Minute)
	st, _ = m.Advance(&st, reading("finca1", 2.0))
	clock.Advance(time.Minute)
	st, _ = m.Advance(&st, reading("finca1", 2.5))

	assert.InDelta(t, 2.0, st.MaxIntensity, 1e-9)
}

func TestAdvance_ClosesAfterTimeoutBackdated(t *testing.T) {
	start := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	m := newTestMachine(clock)

	// Counter: flat, flat, +0.3, flat, then 30 minutes of silence.
	st, _ := m.Advance(nil, reading("finca1", 10.0))
	clock.Advance(5 * time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 10.0))
	assert.Empty(t, ops)

	clock.Advance(5 * time.Minute)
	st, ops = m.Advance(&st, reading("finca1", 10.3))
	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpOpen, ops[0].Kind)
	assert.Equal(t, 10.0, ops[0].Event.RainAtStart)

	clock.Advance(5 * time.Minute)
	st, ops = m.Advance(&st, reading("finca1", 10.3))
	assert.Empty(t, ops)
	assert.True(t, st.IsActive)

	clock.Advance(30 * time.Minute)
	st, ops = m.Advance(&st, reading("finca1", 10.3))
	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpClose, ops[0].Kind)

	patch := ops[0].Patch
	require.NotNil(t, patch.EventEnd)
	assert.Equal(t, start.Add(15*time.Minute), *patch.EventEnd)
	require.NotNil(t, patch.RainAccumulated)
	assert.InDelta(t, 0.3, *patch.RainAccumulated, 1e-9)
	require.NotNil(t, patch.DurationMinutes)
	assert.Equal(t, 5, *patch.DurationMinutes)
	assert.False(t, st.IsActive)
}

func TestAdvance_GapJustUnderTimeoutStaysActive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 0.0))
	clock.Advance(time.Minute)
	st, _ = m.Advance(&st, reading("finca1", 0.5))

	clock.Advance(29*time.Minute + 54*time.Second)
	st, ops := m.Advance(&st, reading("finca1", 0.5))

	assert.Empty(t, ops)
	assert.True(t, st.IsActive)
}

func TestAdvance_CounterRolloverPreservesAccumulation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	// Daily counter resets at local midnight mid-event.
	st, _ := m.Advance(nil, reading("finca1", 5.0))
	clock.Advance(time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 6.0))
	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpOpen, ops[0].Kind)

	clock.Advance(time.Minute)
	st, ops = m.Advance(&st, reading("finca1", 0.2))
	assert.Empty(t, ops)
	assert.True(t, st.IsActive)
	assert.Equal(t, 0.2, st.LastRain)

	clock.Advance(time.Minute)
	st, ops = m.Advance(&st, reading("finca1", 0.5))
	require.Len(t, ops, 1)
	assert.Equal(t, rainevent.OpUpdate, ops[0].Kind)
	require.NotNil(t, ops[0].Patch.RainAccumulated)
	assert.InDelta(t, 1.3, *ops[0].Patch.RainAccumulated, 1e-9)
}

func TestAdvance_RolloverWhileIdleOnlyRebases(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	st, _ := m.Advance(nil, reading("finca1", 8.0))
	clock.Advance(time.Minute)
	st, ops := m.Advance(&st, reading("finca1", 0.0))

	assert.Empty(t, ops)
	assert.False(t, st.IsActive)
	assert.Equal(t, 0.0, st.LastRain)
}

func TestAdvance_IsPureGivenEqualInputs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newTestMachine(clock)

	base, _ := m.Advance(nil, reading("finca1", 3.0))
	clock.Advance(time.Minute)

	in1 := base
	in2 := base
	st1, ops1 := m.Advance(&in1, reading("finca1", 3.4))
	st2, ops2 := m.Advance(&in2, reading("finca1", 3.4))

	assert.Equal(t, st1, st2)
	require.Len(t, ops1, 1)
	require.Len(t, ops2, 1)
	assert.Equal(t, ops1[0].Kind, ops2[0].Kind)
	assert.Equal(t, ops1[0].Event, ops2[0].Event)
}
