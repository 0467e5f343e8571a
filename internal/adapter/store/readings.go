package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

const readingsResource = "weather_readings"

// readingRow is the weather_readings table shape. It carries only the
// columns the table actually has; transport-side fields like ingest time
// stay out of the store.
type readingRow struct {
	StationKey     string    `json:"station_key"`
	StationName    string    `json:"station_name"`
	StationID      string    `json:"station_id,omitempty"`
	EventTime      time.Time `json:"event_time"`
	TempCelsius    *float64  `json:"temp_celsius,omitempty"`
	TempFahrenheit *float64  `json:"temp_fahrenheit,omitempty"`
	Humidity       *float64  `json:"humidity,omitempty"`
	VPDKPa         *float64  `json:"vpd_kpa,omitempty"`
	DewPoint       *float64  `json:"dew_point,omitempty"`
	RainMM         *float64  `json:"rain_mm,omitempty"`
	RainField      string    `json:"rain_field,omitempty"`
	SolarRadiation *float64  `json:"solar_radiation,omitempty"`
	UVIndex        *float64  `json:"uv_index,omitempty"`
	WindSpeed      *float64  `json:"wind_speed,omitempty"`
	WindDir        *float64  `json:"wind_dir,omitempty"`
}

// InsertReadings appends raw readings. Duplicate rows (same station and
// event time, e.g. from a replayed batch) merge into the existing row
// instead of erroring, which is what makes replays harmless.
func (c *Client) InsertReadings(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]readingRow, len(readings))
	for i, r := range readings {
		rows[i] = readingRow{
			StationKey:     r.StationKey,
			StationName:    r.StationName,
			StationID:      r.StationID,
			EventTime:      r.EventTime,
			TempCelsius:    r.TempC,
			TempFahrenheit: r.TempF,
			Humidity:       r.Humidity,
			VPDKPa:         r.VPDKPa,
			DewPoint:       r.DewPoint,
			RainMM:         r.RainMM,
			RainField:      r.RainField,
			SolarRadiation: r.SolarRadiation,
			UVIndex:        r.UVIndex,
			WindSpeed:      r.WindSpeed,
			WindDir:        r.WindDir,
		}
	}
	if err := c.do(ctx, "POST", readingsResource, nil, "resolution=merge-duplicates", rows, nil); err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}

// LatestRainSamples returns the station's most recent rainfall observations,
// newest first. The sweeper asks for two: the latest value and the one
// before it, enough to judge whether rain is still falling.
func (c *Client) LatestRainSamples(ctx context.Context, stationKey string, limit int) ([]domain.RainSample, error) {
	query := url.Values{
		"station_key": {"eq." + stationKey},
		"select":      {"rain_mm,event_time"},
		"order":       {"event_time.desc"},
		"limit":       {strconv.Itoa(limit)},
	}
	var rows []domain.RainSample
	if err := c.do(ctx, "GET", readingsResource, query, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("latest rain samples %s: %w", stationKey, err)
	}
	return rows, nil
}
