package sink

import (
	"context"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/metric"
)

type Config struct {
	Enabled bool
	APIKey  string
	AppKey  string
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Enabled && (c.APIKey == "" || c.AppKey == "") {
		return errFactory.New(ErrInvalidConfig)
	}
	return nil
}

// NewSink returns the Datadog-backed sink, or a logging no-op sink when
// submission is disabled (dry runs).
func NewSink(cfg Config) (Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Metric submission disabled, using no-op sink")
		return &noopSink{}, nil
	}

	return newDatadogSink(cfg), nil
}

// No-op implementation
type noopSink struct{}

func (*noopSink) Submit(_ context.Context, point metric.Point) error {
	logger.Info().
		Str("metric", point.Name).
		Int64("timestamp", point.Timestamp).
		Float64("value", point.Value).
		Str("kind", point.Kind.String()).
		Strs("tags", point.Tags).
		Msg("Dry run: point not submitted")

	return nil
}

func (*noopSink) Close() error {
	return nil
}
