// Package report is the read side: pure aggregation of closed rain events
// into the accumulated-rainfall summaries the agronomy dashboards chart.
// Stateless: summaries are recomputed from event rows on every query.
package report

import (
	"fmt"
	"sort"

	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
)

// Accumulation groups accumulated rainfall per station by calendar day and
// by ISO week.
type Accumulation struct {
	// ByWeek maps station key -> "YY-WW" -> millimeters.
	ByWeek map[string]map[string]float64 `json:"by_week"`
	// ByDay maps station key -> "YYYY-MM-DD" -> millimeters.
	ByDay map[string]map[string]float64 `json:"by_day"`
}

// Accumulate sums each event's accumulated rainfall into its station's
// daily and weekly buckets, keyed by the event's start time. Events still
// active contribute their running total, matching how the dashboard shows
// rain "so far today".
func Accumulate(events []domain.RainEvent) Accumulation {
	acc := Accumulation{
		ByWeek: make(map[string]map[string]float64),
		ByDay:  make(map[string]map[string]float64),
	}

	for _, ev := range events {
		if ev.StationKey == "" || ev.EventStart.IsZero() {
			continue
		}
		start := ev.EventStart.UTC()

		year, week := start.ISOWeek()
		weekKey := fmt.Sprintf("%02d-%02d", year%100, week)
		dayKey := start.Format("2006-01-02")

		if acc.ByWeek[ev.StationKey] == nil {
			acc.ByWeek[ev.StationKey] = make(map[string]float64)
		}
		if acc.ByDay[ev.StationKey] == nil {
			acc.ByDay[ev.StationKey] = make(map[string]float64)
		}
		acc.ByWeek[ev.StationKey][weekKey] += ev.RainAccumulated
		acc.ByDay[ev.StationKey][dayKey] += ev.RainAccumulated
	}

	return acc
}

// row is one flattened (station, period, mm) line for export.
type row struct {
	Station string
	Period  string
	RainMM  float64
}

// flatten turns a station->period->mm map into rows sorted by station then
// period, for deterministic export output.
func flatten(buckets map[string]map[string]float64) []row {
	var rows []row
	for station, periods := range buckets {
		for period, mm := range periods {
			rows = append(rows, row{Station: station, Period: period, RainMM: mm})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Station != rows[j].Station {
			return rows[i].Station < rows[j].Station
		}
		return rows[i].Period < rows[j].Period
	})
	return rows
}
