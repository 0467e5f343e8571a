package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

const eventsResource = "rain_events"

// CreateEvent inserts an active event row. If the store reports a conflict
// (an active row already exists for the station, typically because the
// sweeper or a previous incarnation of this process got there first) it
// falls back to patching that row with the new accumulation figures, so the
// two writers converge instead of erroring. Returns the stored row when the
// store hands one back.
func (c *Client) CreateEvent(ctx context.Context, ev domain.RainEvent) (domain.RainEvent, error) {
	var rows []domain.RainEvent
	err := c.do(ctx, "POST", eventsResource, nil, "return=representation", []domain.RainEvent{ev}, &rows)
	if errors.Is(err, ErrConflict) {
		c.logger.Info("active event already exists, converging via update",
			"station_key", ev.StationKey)
		patch := domain.EventPatch{
			RainAccumulated: domain.Float(ev.RainAccumulated),
			MaxIntensity:    domain.Float(ev.MaxIntensity),
			UpdatedAt:       domain.Time(ev.UpdatedAt),
		}
		matched, uerr := c.UpdateActiveEvent(ctx, ev.StationKey, patch)
		if uerr != nil {
			return domain.RainEvent{}, uerr
		}
		if !matched {
			// The conflicting row closed between our insert and update.
			// The caller's next reading will re-open cleanly.
			return domain.RainEvent{}, nil
		}
		return domain.RainEvent{}, nil
	}
	if err != nil {
		return domain.RainEvent{}, fmt.Errorf("create event: %w", err)
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	return domain.RainEvent{}, nil
}

// UpdateActiveEvent patches the station's active event row. The filter is by
// station key and active flag, not by id, so it stays correct even when the
// caller's in-memory event id is stale after a restart. A zero-row match is
// not an error: it means a concurrent path already closed the event, and the
// caller should reset its in-memory state to idle.
func (c *Client) UpdateActiveEvent(ctx context.Context, stationKey string, patch domain.EventPatch) (bool, error) {
	return c.patchActive(ctx, stationKey, patch)
}

// CloseActiveEvent closes the station's active event row with the same
// conditional-patch discipline. Closing an already-closed event is a no-op,
// which makes the operation safe to retry any number of times.
func (c *Client) CloseActiveEvent(ctx context.Context, stationKey string, patch domain.EventPatch) (bool, error) {
	if patch.IsActive == nil {
		patch.IsActive = domain.Bool(false)
	}
	return c.patchActive(ctx, stationKey, patch)
}

func (c *Client) patchActive(ctx context.Context, stationKey string, patch domain.EventPatch) (bool, error) {
	query := url.Values{
		"station_key": {"eq." + stationKey},
		"is_active":   {"eq.true"},
	}
	var rows []domain.RainEvent
	err := c.do(ctx, "PATCH", eventsResource, query, "return=representation", patch, &rows)
	if err != nil {
		return false, fmt.Errorf("patch active event %s: %w", stationKey, err)
	}
	return len(rows) > 0, nil
}

// CloseEventByID closes a specific event row. Used by the sweeper, which
// works from rows it just listed and therefore has authoritative ids.
func (c *Client) CloseEventByID(ctx context.Context, id int64, patch domain.EventPatch) error {
	if patch.IsActive == nil {
		patch.IsActive = domain.Bool(false)
	}
	query := url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
	if err := c.do(ctx, "PATCH", eventsResource, query, "", patch, nil); err != nil {
		return fmt.Errorf("close event %d: %w", id, err)
	}
	return nil
}

// ListActiveEvents returns every active event row across stations.
func (c *Client) ListActiveEvents(ctx context.Context) ([]domain.RainEvent, error) {
	query := url.Values{
		"is_active": {"eq.true"},
		"order":     {"event_start.desc"},
	}
	var rows []domain.RainEvent
	if err := c.do(ctx, "GET", eventsResource, query, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	return rows, nil
}

// ListEventsSince returns events whose start falls at or after since, newest
// first. A non-positive limit means no cap.
func (c *Client) ListEventsSince(ctx context.Context, since time.Time, limit int) ([]domain.RainEvent, error) {
	query := url.Values{
		"event_start": {"gte." + since.UTC().Format(time.RFC3339)},
		"order":       {"event_start.desc"},
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var rows []domain.RainEvent
	if err := c.do(ctx, "GET", eventsResource, query, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("list events since %s: %w", since, err)
	}
	return rows, nil
}

// ListEvents returns recent events, newest first, optionally filtered to one
// station.
func (c *Client) ListEvents(ctx context.Context, stationKey string, limit int) ([]domain.RainEvent, error) {
	query := url.Values{
		"order": {"event_start.desc"},
		"limit": {strconv.Itoa(limit)},
	}
	if stationKey != "" {
		query.Set("station_key", "eq."+stationKey)
	}
	var rows []domain.RainEvent
	if err := c.do(ctx, "GET", eventsResource, query, "", nil, &rows); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return rows, nil
}
