package rainevent

import (
	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

// Tracker is the explicit per-station state store. The stream consumer is
// partitioned by station key, so a given station's state is only ever
// touched by one goroutine at a time; Tracker therefore needs no locking.
type Tracker struct {
	states map[string]State
}

// NewTracker creates an empty state store.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Get returns the station's state, or nil if the station has never been
// seen (the machine treats nil as "initialize from this reading").
func (t *Tracker) Get(stationKey string) *State {
	st, ok := t.states[stationKey]
	if !ok {
		return nil
	}
	return &st
}

// Put stores the station's next state.
func (t *Tracker) Put(stationKey string, st State) {
	t.states[stationKey] = st
}

// Len returns the number of tracked stations.
func (t *Tracker) Len() int {
	return len(t.states)
}

// Rehydrate rebuilds state from the store's active event rows so a restart
// does not lose open events. The last counter value is recovered from the
// row's accumulation figures; LastUpdate comes from the row's updated_at, so
// an event that went quiet before the restart still times out on schedule.
// Stations without an active row stay unknown and initialize lazily from
// their next reading.
func (t *Tracker) Rehydrate(active []domain.RainEvent) {
	for _, ev := range active {
		if !ev.IsActive || ev.StationKey == "" {
			continue
		}
		lastRain := ev.RainAtStart + ev.RainAccumulated
		if ev.RainAtEnd != nil {
			lastRain = *ev.RainAtEnd
		}
		t.states[ev.StationKey] = State{
			IsActive:     true,
			EventID:      ev.ID,
			EventStart:   ev.EventStart,
			RainAtStart:  ev.RainAtStart,
			LastRain:     lastRain,
			LastUpdate:   ev.UpdatedAt,
			MaxIntensity: ev.MaxIntensity,
		}
	}
}
