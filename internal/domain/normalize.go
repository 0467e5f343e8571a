package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Sensor types reported by the WeatherLink v2 API. The integrated sensor
// suite (outdoor temp/hum/wind/rain) shows up under a handful of type codes
// depending on the gateway hardware; barometric pressure is its own sensor.
var (
	weatherSensorTypes    = map[int]bool{23: true, 45: true, 53: true, 55: true}
	barometricSensorTypes = map[int]bool{242: true, 243: true}
)

// Rain-field resolution order. Explicit millimeter fields win over
// inch-denominated ones, and daily cumulative fields win over rate or
// interval fields within the same unit. The two API modes ("current"
// conditions vs "historic" records) use different field vocabularies, so
// each mode keeps its own lists.
var (
	currentRainMMKeys = []string{
		"rainfall_daily_mm",
		"rainfall_mm",
		"rainfall_last_15_min_mm",
		"rain_day_mm",
		"rain_rate_mm",
	}
	currentRainInKeys = []string{
		"rainfall_daily_in",
		"rainfall_in",
		"rain_rate_in",
		"rain_day_in",
		"rain_rate_last", // reported in inches despite the name
	}

	historicRainMMKeys = []string{
		"rainfall_mm",
		"rainfall_last_15_min_mm",
		"rain_day_mm",
		"rain_rate_mm",
	}
	historicRainInKeys = []string{
		"rainfall_in",
		"rain_rate_in",
		"rain_day_in",
		"rain_rate_last",
		"rainfall_last_15_min",
	}
)

const inchesToMM = 25.4

// ConditionsPayload is the sensor envelope returned by the WeatherLink API
// for both current-conditions and historic queries.
type ConditionsPayload struct {
	Sensors []SensorBlock `json:"sensors"`
}

// SensorBlock is one sensor's records within a conditions payload.
type SensorBlock struct {
	SensorType int              `json:"sensor_type"`
	Data       []map[string]any `json:"data"`
}

// IsWeatherSensor reports whether a sensor type code is an outdoor weather
// sensor suite, as opposed to barometric or indoor units.
func IsWeatherSensor(sensorType int) bool {
	return weatherSensorTypes[sensorType]
}

// StationMeta identifies a configured station.
type StationMeta struct {
	Key  string
	Name string
	ID   string
}

// NormalizeCurrent converts a current-conditions payload into a canonical
// Reading. It returns false when the payload carries no weather sensor.
func NormalizeCurrent(station StationMeta, payload ConditionsPayload, ingestTime time.Time) (Reading, bool) {
	reading := Reading{
		StationKey:  station.Key,
		StationName: station.Name,
		StationID:   station.ID,
		IngestTime:  ingestTime,
	}
	found := false

	for _, sensor := range payload.Sensors {
		if len(sensor.Data) == 0 {
			continue
		}
		rec := sensor.Data[0]

		if weatherSensorTypes[sensor.SensorType] {
			found = true
			reading.EventTime = recordTime(rec)
			reading.TempF = firstFloat(rec, "temp", "temp_out")
			reading.Humidity = firstFloat(rec, "hum", "hum_out")
			reading.WindSpeed = firstFloat(rec,
				"wind_speed_last", "wind_speed_avg_last_10_min", "wind_speed", "wind_speed_10_min")
			reading.WindDir = firstFloat(rec, "wind_dir_last", "wind_dir")
			reading.SolarRadiation = firstFloat(rec, "solar_rad")
			reading.UVIndex = firstFloat(rec, "uv_index", "uv")
			reading.DewPoint = firstFloat(rec, "dew_point")
			reading.RainMM, reading.RainField = resolveRain(rec, currentRainMMKeys, currentRainInKeys, "rainfall_last_15_min")
			deriveTemperature(&reading)
		}

		if barometricSensorTypes[sensor.SensorType] {
			reading.Pressure = firstFloat(rec, "bar_sea_level")
			reading.PressureTrend = firstFloat(rec, "bar_trend")
		}

		if reading.EventTime.IsZero() {
			reading.EventTime = recordTime(rec)
		}
	}

	return reading, found
}

// NormalizeHistoric converts one historic record into a canonical Reading.
// Historic records use the _last/_avg field naming convention.
func NormalizeHistoric(station StationMeta, rec map[string]any, ingestTime time.Time) Reading {
	reading := Reading{
		StationKey:  station.Key,
		StationName: station.Name,
		StationID:   station.ID,
		EventTime:   recordTime(rec),
		IngestTime:  ingestTime,
	}

	reading.TempF = firstFloat(rec, "temp", "temp_out", "temp_last")
	reading.Humidity = firstFloat(rec, "hum", "hum_out", "hum_last")
	reading.WindSpeed = firstFloat(rec,
		"wind_speed_last", "wind_speed_avg_last_10_min", "wind_speed", "wind_speed_10_min", "wind_speed_avg")
	reading.WindDir = firstFloat(rec, "wind_dir_last", "wind_dir")
	reading.SolarRadiation = firstFloat(rec, "solar_rad", "solar_rad_avg")
	reading.UVIndex = firstFloat(rec, "uv_index", "uv")
	reading.DewPoint = firstFloat(rec, "dew_point", "dew_point_last")
	reading.RainMM, reading.RainField = resolveRain(rec, historicRainMMKeys, historicRainInKeys, "")
	if reading.RainMM == nil {
		if v := firstFloat(rec, "rain_rate_last_mm"); v != nil {
			reading.RainMM, reading.RainField = v, "rain_rate_last_mm"
		}
	}
	deriveTemperature(&reading)

	return reading
}

// resolveRain picks the rainfall counter out of a record, preferring
// millimeter fields and converting inches when that is all the firmware
// offers. fallbackMM names a last-resort field assumed to be millimeters;
// empty means no fallback.
func resolveRain(rec map[string]any, mmKeys, inKeys []string, fallbackMM string) (*float64, string) {
	for _, key := range mmKeys {
		if v := SafeFloat(rec[key]); v != nil {
			return v, key
		}
	}
	for _, key := range inKeys {
		if v := SafeFloat(rec[key]); v != nil {
			mm := *v * inchesToMM
			return &mm, key
		}
	}
	if fallbackMM != "" {
		if v := SafeFloat(rec[fallbackMM]); v != nil {
			return v, fallbackMM
		}
	}
	return nil, ""
}

// deriveTemperature fills Celsius from Fahrenheit and computes vapor
// pressure deficit (Tetens equation) when temperature and humidity are both
// present.
func deriveTemperature(r *Reading) {
	if r.TempF == nil {
		return
	}
	tc := (*r.TempF - 32) * 5 / 9
	r.TempC = &tc

	if r.Humidity == nil {
		return
	}
	vpsat := 0.6108 * math.Exp((17.27*tc)/(tc+237.3))
	vpd := vpsat - (*r.Humidity/100)*vpsat
	vpd = math.Round(vpd*100) / 100
	r.VPDKPa = &vpd
}

// SafeFloat converts a loosely typed payload value to a float, treating
// NaN, Inf, and unparseable values as absent. A nil result must never be
// propagated as a number.
func SafeFloat(value any) *float64 {
	var v float64
	switch t := value.(type) {
	case nil:
		return nil
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// firstFloat returns the first present, finite value among the named keys.
func firstFloat(rec map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v := SafeFloat(rec[key]); v != nil {
			return v
		}
	}
	return nil
}

// recordTime extracts the sensor timestamp ("ts", unix seconds) from a record.
func recordTime(rec map[string]any) time.Time {
	v := SafeFloat(rec["ts"])
	if v == nil || *v <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(*v), 0).UTC()
}
