// Package config loads service settings from the environment, with a local
// .env honored in development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Station holds one WeatherLink station's identity and credentials.
type Station struct {
	Key       string
	Name      string
	ID        string
	APIKey    string
	APISecret string
}

// Config holds all service settings, populated from environment variables.
// One struct serves every binary; each binary only reads its slice of it.
type Config struct {
	// Durable store (Supabase-style REST).
	StoreURL     string
	StoreAPIKey  string
	StoreTimeout time.Duration

	// Transport.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Rain-event detection.
	RainStartThresholdMM float64
	NoRainTimeout        time.Duration
	SweepInterval        time.Duration
	SweepTimeout         time.Duration

	// Stream consumption.
	BatchSize          int
	BatchFlushInterval time.Duration

	// Collector.
	PollInterval       time.Duration
	WeatherLinkTimeout time.Duration
	Stations           []Station

	// Read API.
	EventHistoryLimit int
	AccumulationWeeks int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. Missing store credentials are the one fatal condition: every
// binary writes to or reads from the store, and running without it would
// silently drop data.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing .env

	cfg := &Config{
		StoreURL:     os.Getenv("STORE_URL"),
		StoreAPIKey:  os.Getenv("STORE_API_KEY"),
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "weatherlink.raw"),
		KafkaGroupID: envOrDefault("KAFKA_GROUP_ID", "rain-alerts"),
		HTTPAddr:     envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.StoreURL == "" {
		return nil, errors.New("STORE_URL is required")
	}
	if cfg.StoreAPIKey == "" {
		return nil, errors.New("STORE_API_KEY is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}

	var err error
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchFlushInterval, err = durationEnv("BATCH_FLUSH_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherLinkTimeout, err = durationEnv("WEATHERLINK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.RainStartThresholdMM, err = floatEnv("RAIN_START_THRESHOLD_MM", 0.1); err != nil {
		return nil, err
	}
	noRainMinutes, err := intEnv("NO_RAIN_TIMEOUT_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.NoRainTimeout = time.Duration(noRainMinutes) * time.Minute

	sweepIntervalMinutes, err := intEnv("SWEEP_INTERVAL_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval = time.Duration(sweepIntervalMinutes) * time.Minute

	// The sweeper's close threshold is independently tunable but defaults to
	// the streaming timeout so the two closing authorities agree.
	sweepTimeoutMinutes, err := intEnv("SWEEP_TIMEOUT_MINUTES", noRainMinutes)
	if err != nil {
		return nil, err
	}
	cfg.SweepTimeout = time.Duration(sweepTimeoutMinutes) * time.Minute

	if cfg.BatchSize, err = intEnv("BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 1000 {
		return nil, fmt.Errorf("BATCH_SIZE must be between 1 and 1000, got %d", cfg.BatchSize)
	}
	if cfg.EventHistoryLimit, err = intEnv("EVENT_HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.AccumulationWeeks, err = intEnv("ACCUMULATION_WEEKS", 8); err != nil {
		return nil, err
	}

	cfg.Stations = loadStations()

	return cfg, nil
}

// RequireStations fails when no station credentials are configured. Only the
// collector calls this; the stream-side binaries have no business with
// vendor credentials.
func (c *Config) RequireStations() error {
	if len(c.Stations) == 0 {
		return errors.New("no stations configured: set STATION_KEYS and per-station credentials")
	}
	return nil
}

// loadStations reads STATION_KEYS (comma separated, e.g. "finca1,finca2")
// and, per key, STATION_<KEY>_NAME, _ID, _API_KEY, and _API_SECRET. Stations
// with incomplete credentials are skipped, matching how partially configured
// farms roll out.
func loadStations() []Station {
	keys := parseBrokers(os.Getenv("STATION_KEYS"))
	stations := make([]Station, 0, len(keys))
	for _, key := range keys {
		prefix := "STATION_" + strings.ToUpper(key) + "_"
		s := Station{
			Key:       key,
			Name:      envOrDefault(prefix+"NAME", key),
			ID:        os.Getenv(prefix + "ID"),
			APIKey:    os.Getenv(prefix + "API_KEY"),
			APISecret: os.Getenv(prefix + "API_SECRET"),
		}
		if s.ID == "" || s.APIKey == "" || s.APISecret == "" {
			continue
		}
		stations = append(stations, s)
	}
	return stations
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}
