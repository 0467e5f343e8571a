// Package weatherlink is the vendor client for the WeatherLink v2 API. It
// fetches raw conditions payloads and hands normalization to the domain
// package, so the rest of the system never sees vendor field names.
package weatherlink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

const defaultBaseURL = "https://api.weatherlink.com/v2"

// historicMaxRange is the API's hard cap of 24 hours per historic request.
const historicMaxRange = 86400 * time.Second

// Client fetches conditions for one station. The API key travels as a query
// parameter and the secret as the X-Api-Secret header.
type Client struct {
	apiKey     string
	apiSecret  string
	station    domain.StationMeta
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a WeatherLink client for one station.
func NewClient(station domain.StationMeta, apiKey, apiSecret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		station:   station,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// Station returns the station this client polls.
func (c *Client) Station() domain.StationMeta {
	return c.station
}

// CurrentConditions fetches and normalizes the station's latest sample. The
// second return value is false when the payload carried no weather sensor.
func (c *Client) CurrentConditions(ctx context.Context) (domain.Reading, bool, error) {
	var payload domain.ConditionsPayload
	if err := c.doRequest(ctx, "current/"+c.station.ID, nil, &payload); err != nil {
		return domain.Reading{}, false, err
	}
	reading, ok := domain.NormalizeCurrent(c.station, payload, time.Now().UTC())
	return reading, ok, nil
}

// HistoricReadings fetches and normalizes the station's archive records for
// [start, end). Requests are chunked to the API's 24-hour window; a failed
// chunk is logged and skipped so one bad window does not lose the rest.
func (c *Client) HistoricReadings(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	var readings []domain.Reading
	ingestTime := time.Now().UTC()

	for chunkStart := start; chunkStart.Before(end); {
		chunkEnd := chunkStart.Add(historicMaxRange)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		params := url.Values{
			"start-timestamp": {fmt.Sprintf("%d", chunkStart.Unix())},
			"end-timestamp":   {fmt.Sprintf("%d", chunkEnd.Unix())},
		}

		var payload domain.ConditionsPayload
		if err := c.doRequest(ctx, "historic/"+c.station.ID, params, &payload); err != nil {
			if ctx.Err() != nil {
				return readings, ctx.Err()
			}
			c.logger.Warn("historic chunk failed, skipping",
				"error", err,
				"station_key", c.station.Key,
				"start", chunkStart,
				"end", chunkEnd,
			)
			chunkStart = chunkEnd
			continue
		}

		for _, sensor := range payload.Sensors {
			if !domain.IsWeatherSensor(sensor.SensorType) || len(sensor.Data) == 0 {
				continue
			}
			for _, rec := range sensor.Data {
				readings = append(readings, domain.NormalizeHistoric(c.station, rec, ingestTime))
			}
			// Only the first weather sensor per chunk; gateways that expose
			// several report duplicate archives.
			break
		}

		chunkStart = chunkEnd
	}

	return readings, nil
}

// StationMetadata fetches the raw station metadata document.
func (c *Client) StationMetadata(ctx context.Context) (map[string]any, error) {
	var meta map[string]any
	if err := c.doRequest(ctx, "stations/"+c.station.ID, nil, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api-key", c.apiKey)

	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Secret", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weatherlink request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weatherlink API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
