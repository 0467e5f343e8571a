package collector_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renealejo96/weatherlink-dashboard/internal/collector"
	"github.com/renealejo96/weatherlink-dashboard/internal/domain"
	"github.com/renealejo96/weatherlink-dashboard/internal/observability"
)

type mockPoller struct {
	station domain.StationMeta
	reading domain.Reading
	ok      bool
	err     error
}

func (m *mockPoller) Station() domain.StationMeta { return m.station }

func (m *mockPoller) CurrentConditions(_ context.Context) (domain.Reading, bool, error) {
	return m.reading, m.ok, m.err
}

type mockPublisher struct {
	published []domain.Reading
	err       error
}

func (m *mockPublisher) PublishReadings(_ context.Context, readings []domain.Reading) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, readings...)
	return nil
}

func newTestCollector(pollers []collector.StationPoller, pub *mockPublisher) *collector.Collector {
	return collector.New(pollers, pub, time.Minute, clockwork.NewFakeClock(),
		slog.Default(), observability.NewMetricsForTesting())
}

func TestPollOnce_PublishesAllStations(t *testing.T) {
	pub := &mockPublisher{}
	c := newTestCollector([]collector.StationPoller{
		&mockPoller{
			station: domain.StationMeta{Key: "finca1"},
			reading: domain.Reading{StationKey: "finca1", RainMM: domain.Float(3.2)},
			ok:      true,
		},
		&mockPoller{
			station: domain.StationMeta{Key: "finca2"},
			reading: domain.Reading{StationKey: "finca2"},
			ok:      true,
		},
	}, pub)

	published := c.PollOnce(context.Background())

	assert.Equal(t, 2, published)
	require.Len(t, pub.published, 2)
	assert.Equal(t, "finca1", pub.published[0].StationKey)
}

func TestPollOnce_FailedStationDoesNotBlockOthers(t *testing.T) {
	pub := &mockPublisher{}
	c := newTestCollector([]collector.StationPoller{
		&mockPoller{station: domain.StationMeta{Key: "finca1"}, err: errors.New("vendor timeout")},
		&mockPoller{
			station: domain.StationMeta{Key: "finca2"},
			reading: domain.Reading{StationKey: "finca2"},
			ok:      true,
		},
	}, pub)

	published := c.PollOnce(context.Background())

	assert.Equal(t, 1, published)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "finca2", pub.published[0].StationKey)
}

func TestPollOnce_NoSensorDataIsSkipped(t *testing.T) {
	pub := &mockPublisher{}
	c := newTestCollector([]collector.StationPoller{
		&mockPoller{station: domain.StationMeta{Key: "finca1"}, ok: false},
	}, pub)

	published := c.PollOnce(context.Background())

	assert.Equal(t, 0, published)
	assert.Empty(t, pub.published)
}

func TestPollOnce_PublishErrorDropsCycle(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	c := newTestCollector([]collector.StationPoller{
		&mockPoller{
			station: domain.StationMeta{Key: "finca1"},
			reading: domain.Reading{StationKey: "finca1"},
			ok:      true,
		},
	}, pub)

	published := c.PollOnce(context.Background())

	assert.Equal(t, 0, published)
}

func TestRun_PollsImmediatelyAndBecomesReady(t *testing.T) {
	pub := &mockPublisher{}
	c := newTestCollector([]collector.StationPoller{
		&mockPoller{
			station: domain.StationMeta{Key: "finca1"},
			reading: domain.Reading{StationKey: "finca1"},
			ok:      true,
		},
	}, pub)

	require.Error(t, c.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return c.CheckReadiness(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
