package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

func TestSerializeReading_KeyedByStation(t *testing.T) {
	ingested := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)
	r := domain.Reading{
		StationKey:  "finca1",
		StationName: "Finca Uno",
		EventTime:   ingested.Add(-time.Minute),
		IngestTime:  ingested,
		RainMM:      domain.Float(10.4),
		RainField:   "rainfall_daily_mm",
	}

	msg, err := serializeReading(r)
	require.NoError(t, err)

	assert.Equal(t, []byte("finca1"), msg.Key)

	var decoded domain.Reading
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "finca1", decoded.StationKey)
	require.NotNil(t, decoded.RainMM)
	assert.Equal(t, 10.4, *decoded.RainMM)
	assert.Equal(t, "rainfall_daily_mm", decoded.RainField)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "finca1", headers["station_key"])
	assert.Equal(t, "2025-05-01T06:00:00Z", headers["ingested_at"])
}

func TestSerializeReading_OmitsAbsentMetrics(t *testing.T) {
	msg, err := serializeReading(domain.Reading{
		StationKey: "finca1",
		EventTime:  time.Now().UTC(),
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &raw))
	assert.NotContains(t, raw, "rain_mm")
	assert.NotContains(t, raw, "temp_celsius")
}
