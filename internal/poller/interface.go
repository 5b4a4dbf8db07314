package poller

import (
	"context"

	"codeberg.org/mutker/thermopoll/internal/ecobee"
	"codeberg.org/mutker/thermopoll/internal/metric"
	"codeberg.org/mutker/thermopoll/internal/weather"
)

// Source fetches one entity's raw snapshot.
type Source interface {
	Fetch(ctx context.Context, thermostatID string) (*ecobee.Thermostat, error)
}

// WeatherSource fetches outdoor conditions and the cumulative daily
// precipitation total for the configured location.
type WeatherSource interface {
	Current(ctx context.Context) (*weather.Observation, error)
	DailyPrecipitation(ctx context.Context, date string) (float64, error)
}

// Entity pairs a thermostat id with its emission configuration. Entities
// are processed in configuration order within a tick.
type Entity struct {
	ID     string
	Config metric.EntityConfig
}
