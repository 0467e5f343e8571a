package domain

import (
	"context"
	"time"
)

// Reading is the canonical, vendor-agnostic representation of one sensor
// sample for one station. Metric fields are pointers: nil means the sensor
// did not report the value (or reported NaN/Inf, which is treated the same).
type Reading struct {
	StationKey  string    `json:"station_key"`
	StationName string    `json:"station_name"`
	StationID   string    `json:"station_id,omitempty"`
	EventTime   time.Time `json:"event_time"`
	IngestTime  time.Time `json:"ingest_time,omitempty"`

	TempC    *float64 `json:"temp_celsius,omitempty"`
	TempF    *float64 `json:"temp_fahrenheit,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
	VPDKPa   *float64 `json:"vpd_kpa,omitempty"`
	DewPoint *float64 `json:"dew_point,omitempty"`

	// RainMM is the cumulative rainfall counter normalized to millimeters.
	// RainField records which vendor field the value came from.
	RainMM    *float64 `json:"rain_mm,omitempty"`
	RainField string   `json:"rain_field,omitempty"`

	SolarRadiation *float64 `json:"solar_radiation,omitempty"`
	UVIndex        *float64 `json:"uv_index,omitempty"`
	WindSpeed      *float64 `json:"wind_speed,omitempty"`
	WindDir        *float64 `json:"wind_dir,omitempty"`
	Pressure       *float64 `json:"pressure,omitempty"`
	PressureTrend  *float64 `json:"pressure_trend,omitempty"`
}

// HasRain reports whether this reading carries a usable rainfall counter.
func (r Reading) HasRain() bool {
	return r.RainMM != nil
}

// RawMessage represents an unprocessed message from the raw readings topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// RainSample is one raw rainfall observation as read back from the store,
// used by the reconciliation path to judge whether rain is still falling.
type RainSample struct {
	RainMM    *float64  `json:"rain_mm"`
	EventTime time.Time `json:"event_time"`
}

// RainEvent is the persisted rain-event row. An event is created when a
// station's rainfall counter first jumps by at least the start threshold,
// updated while increments keep arriving, and closed once the counter has
// been flat for the no-rain timeout. EventEnd, RainAtEnd, and
// DurationMinutes stay nil while the event is active.
type RainEvent struct {
	ID              int64      `json:"id,omitempty"`
	StationKey      string     `json:"station_key"`
	StationName     string     `json:"station_name"`
	EventStart      time.Time  `json:"event_start"`
	EventEnd        *time.Time `json:"event_end,omitempty"`
	IsActive        bool       `json:"is_active"`
	RainAtStart     float64    `json:"rain_at_start"`
	RainAtEnd       *float64   `json:"rain_at_end,omitempty"`
	RainAccumulated float64    `json:"rain_accumulated"`
	MaxIntensity    float64    `json:"max_intensity"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EventPatch is a partial update applied to a rain-event row. Nil fields are
// omitted from the wire body and left untouched by the store.
type EventPatch struct {
	IsActive        *bool      `json:"is_active,omitempty"`
	EventEnd        *time.Time `json:"event_end,omitempty"`
	RainAtEnd       *float64   `json:"rain_at_end,omitempty"`
	RainAccumulated *float64   `json:"rain_accumulated,omitempty"`
	MaxIntensity    *float64   `json:"max_intensity,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// Float returns a pointer to v, for building patches and readings inline.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
