package poller_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermopoll/internal/ecobee"
	"codeberg.org/mutker/thermopoll/internal/metric"
	"codeberg.org/mutker/thermopoll/internal/poller"
	"codeberg.org/mutker/thermopoll/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshots map[string]*ecobee.Thermostat
	failing   map[string]bool
	fetches   []string
}

func (f *fakeSource) Fetch(_ context.Context, thermostatID string) (*ecobee.Thermostat, error) {
	f.fetches = append(f.fetches, thermostatID)
	if f.failing[thermostatID] {
		return nil, fmt.Errorf("upstream timeout for %s", thermostatID)
	}
	return f.snapshots[thermostatID], nil
}

type fakeWeather struct {
	obs         *weather.Observation
	precipTotal float64
	currentErr  error
	dates       []string
}

func (f *fakeWeather) Current(context.Context) (*weather.Observation, error) {
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	return f.obs, nil
}

func (f *fakeWeather) DailyPrecipitation(_ context.Context, date string) (float64, error) {
	f.dates = append(f.dates, date)
	return f.precipTotal, nil
}

type recordingSink struct {
	mu      sync.Mutex
	points  []metric.Point
	failOn  string
	submits int
}

func (r *recordingSink) Submit(_ context.Context, p metric.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.submits++
	if r.failOn != "" && p.Name == r.failOn {
		return fmt.Errorf("intake rejected %s", p.Name)
	}
	r.points = append(r.points, p)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = nil
}

func (r *recordingSink) snapshot() []metric.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metric.Point{}, r.points...)
}

func snapshot(id string, interval int) *ecobee.Thermostat {
	return &ecobee.Thermostat{
		Identifier: id,
		Name:       "Thermostat " + id,
		UTCTime:    "2026-08-24 14:00:00",
		Runtime: ecobee.Runtime{
			LastStatusModified: "2026-08-24 13:58:21",
			ActualAQScore:      82,
		},
		ExtendedRuntime: ecobee.ExtendedRuntime{
			RuntimeInterval:      interval,
			LastReadingTimestamp: "2026-08-24 13:55:00",
			ActualTemperature:    []int{701, 702, 703},
			ActualHumidity:       []int{45, 46, 47},
			Fan:                  []int{300, 120, 0},
		},
	}
}

func observation(ts time.Time) *weather.Observation {
	return &weather.Observation{Timestamp: ts, Temp: 68.5, Humidity: 55}
}

func namedPoints(points []metric.Point, name string) []metric.Point {
	var out []metric.Point
	for _, p := range points {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

func countPrefixed(points []metric.Point, prefix string) int {
	n := 0
	for _, p := range points {
		if strings.HasPrefix(p.Name, prefix) {
			n++
		}
	}
	return n
}

func TestTickIsolatesEntityFailures(t *testing.T) {
	source := &fakeSource{
		snapshots: map[string]*ecobee.Thermostat{"b": snapshot("b", 100)},
		failing:   map[string]bool{"a": true},
	}
	wsrc := &fakeWeather{obs: observation(time.Unix(1756044000, 0).UTC()), precipTotal: 1.5}
	snk := &recordingSink{}

	svc, err := poller.New(poller.Config{
		Interval: time.Minute,
		Entities: []poller.Entity{
			{ID: "a", Config: metric.EntityConfig{Name: "A"}},
			{ID: "b", Config: metric.EntityConfig{Name: "B"}},
		},
	}, source, wsrc, snk)
	require.NoError(t, err)

	svc.Tick(context.Background())

	assert.Equal(t, []string{"a", "b"}, source.fetches, "a failing entity must not stop the ones after it")
	assert.Greater(t, countPrefixed(snk.snapshot(), "ecobee."), 0, "entity b still produced points")
	assert.Greater(t, countPrefixed(snk.snapshot(), "weather."), 0, "the weather poll still ran")
}

func TestTickIsolatesWeatherFailure(t *testing.T) {
	source := &fakeSource{snapshots: map[string]*ecobee.Thermostat{"a": snapshot("a", 100)}}
	wsrc := &fakeWeather{currentErr: fmt.Errorf("vendor unavailable")}
	snk := &recordingSink{}

	svc, err := poller.New(poller.Config{
		Interval: time.Minute,
		Entities: []poller.Entity{{ID: "a", Config: metric.EntityConfig{Name: "A"}}},
	}, source, wsrc, snk)
	require.NoError(t, err)

	svc.Tick(context.Background())

	assert.Greater(t, countPrefixed(snk.snapshot(), "ecobee."), 0)
	assert.Zero(t, countPrefixed(snk.snapshot(), "weather."))
}

func TestTickCommitsDedupState(t *testing.T) {
	source := &fakeSource{snapshots: map[string]*ecobee.Thermostat{"a": snapshot("a", 100)}}
	snk := &recordingSink{}

	svc, err := poller.New(poller.Config{
		Interval: time.Minute,
		Entities: []poller.Entity{{ID: "a", Config: metric.EntityConfig{Name: "A"}}},
	}, source, nil, snk)
	require.NoError(t, err)

	svc.Tick(context.Background())
	firstTickRuntime := countPrefixed(snk.snapshot(), "ecobee.runtime.")
	assert.Greater(t, firstTickRuntime, 0, "the first poll always emits the runtime window")

	snk.reset()
	svc.Tick(context.Background())
	assert.Zero(t, countPrefixed(snk.snapshot(), "ecobee.runtime."), "an unchanged window is not re-emitted")
	assert.Greater(t, countPrefixed(snk.snapshot(), "ecobee.air_quality."), 0)

	source.snapshots["a"] = snapshot("a", 101)
	snk.reset()
	svc.Tick(context.Background())
	assert.Equal(t, firstTickRuntime, countPrefixed(snk.snapshot(), "ecobee.runtime."), "a new window is emitted again")
}

func TestTickSinkFailureDoesNotAbortRemainingPoints(t *testing.T) {
	source := &fakeSource{snapshots: map[string]*ecobee.Thermostat{"a": snapshot("a", 100)}}
	snk := &recordingSink{failOn: "ecobee.air_quality.score"}

	svc, err := poller.New(poller.Config{
		Interval: time.Minute,
		Entities: []poller.Entity{{ID: "a", Config: metric.EntityConfig{Name: "A"}}},
	}, source, nil, snk)
	require.NoError(t, err)

	svc.Tick(context.Background())

	accepted := snk.snapshot()
	assert.Empty(t, namedPoints(accepted, "ecobee.air_quality.score"))
	assert.Greater(t, len(accepted), 0, "points after the failed one were still submitted")
	assert.Equal(t, len(accepted)+1, snk.submits)
}

func TestTickRequestsTodaysPrecipitation(t *testing.T) {
	source := &fakeSource{snapshots: map[string]*ecobee.Thermostat{"a": snapshot("a", 100)}}
	wsrc := &fakeWeather{obs: observation(time.Unix(1756044000, 0).UTC()), precipTotal: 2.0}
	snk := &recordingSink{}

	clock := time.Date(2026, 8, 24, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	svc, err := poller.New(poller.Config{
		Interval: time.Minute,
		Entities: []poller.Entity{{ID: "a", Config: metric.EntityConfig{Name: "A"}}},
	}, source, wsrc, snk, poller.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	svc.Tick(context.Background())

	require.Len(t, wsrc.dates, 1)
	assert.Equal(t, "2026-08-24", wsrc.dates[0], "the summary date is derived from UTC, not local time")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	snk := &recordingSink{}

	_, err := poller.New(poller.Config{Interval: 0, Entities: []poller.Entity{{ID: "a"}}}, &fakeSource{}, nil, snk)
	assert.Error(t, err)

	_, err = poller.New(poller.Config{Interval: time.Minute}, &fakeSource{}, nil, snk)
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	source := &fakeSource{snapshots: map[string]*ecobee.Thermostat{"a": snapshot("a", 100)}}
	snk := &recordingSink{}

	svc, err := poller.New(poller.Config{
		Interval: time.Hour,
		Entities: []poller.Entity{{ID: "a", Config: metric.EntityConfig{Name: "A"}}},
	}, source, nil, snk)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Run polls once before the first tick fires.
	require.Eventually(t, func() bool { return len(snk.snapshot()) > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
