package weather_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/transport"
	"codeberg.org/mutker/thermopoll/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *weather.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpc := transport.NewClient(
		transport.WithAttempts(1),
		transport.WithBaseDelay(time.Millisecond),
		transport.WithMaxJitter(time.Millisecond),
	)

	return weather.NewClient("owm-key", 59.91, 10.75, httpc, weather.WithBaseURL(srv.URL))
}

func TestCurrentDecodesObservation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/3.0/onecall", r.URL.Path)
		assert.Equal(t, "owm-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		assert.Equal(t, "59.91", r.URL.Query().Get("lat"))
		assert.Equal(t, "10.75", r.URL.Query().Get("lon"))

		json.NewEncoder(w).Encode(map[string]any{
			"current": map[string]any{
				"dt":         1756044000,
				"temp":       68.5,
				"feels_like": 67.1,
				"pressure":   1013,
				"humidity":   55,
				"dew_point":  51.2,
				"uvi":        3.4,
				"clouds":     40,
				"visibility": 10000,
				"wind_speed": 7.2,
				"wind_deg":   230,
				"wind_gust":  12.8,
			},
			"daily": []map[string]any{{"moon_phase": 0.25}},
		})
	}))

	obs, err := client.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1756044000, 0).UTC(), obs.Timestamp)
	assert.Equal(t, 68.5, obs.Temp)
	assert.Equal(t, 67.1, obs.FeelsLike)
	assert.Equal(t, 1013.0, obs.Pressure)
	assert.Equal(t, 12.8, obs.WindGust)
	assert.Equal(t, 0.25, obs.MoonPhase, "moon phase comes from today's daily forecast entry")
}

func TestCurrentWithoutDailyForecast(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"current": map[string]any{"dt": 1756044000, "temp": 60.0},
		})
	}))

	obs, err := client.Current(context.Background())
	require.NoError(t, err)
	assert.Zero(t, obs.MoonPhase)
}

func TestDailyPrecipitation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/3.0/onecall/day_summary", r.URL.Path)
		assert.Equal(t, "2026-08-24", r.URL.Query().Get("date"))

		json.NewEncoder(w).Encode(map[string]any{
			"precipitation": map[string]any{"total": 4.2},
		})
	}))

	total, err := client.DailyPrecipitation(context.Background(), "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, 4.2, total)
}

func TestCurrentUpstreamStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, weather.ErrUpstreamStatus, errors.CodeOf(err))
}

func TestCurrentDecodeFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{truncated"))
	}))

	_, err := client.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, weather.ErrResponseDecode, errors.CodeOf(err))
}
