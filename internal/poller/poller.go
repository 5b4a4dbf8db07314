package poller

import (
	"context"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/metric"
	"codeberg.org/mutker/thermopoll/internal/sink"
)

const dateLayout = "2006-01-02"

type Config struct {
	Interval             time.Duration
	Entities             []Entity
	WeatherAlwaysCurrent bool
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if len(c.Entities) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "no entities to poll")
	}
	return nil
}

// Service drives the fixed-cadence poll-and-forward loop. Failures are
// isolated per entity and per weather poll; nothing escapes a tick. Dedup
// state starts empty on every process start, so the first poll of each
// entity always emits.
type Service struct {
	cfg          Config
	source       Source
	weather      WeatherSource // nil disables the weather poll
	snk          sink.Sink
	now          func() time.Time
	dedup        map[string]metric.DedupState
	weatherState metric.DedupState
}

type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(cfg Config, source Source, weatherSrc WeatherSource, snk sink.Sink, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		source:  source,
		weather: weatherSrc,
		snk:     snk,
		now:     time.Now,
		dedup:   make(map[string]metric.DedupState, len(cfg.Entities)),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run polls once immediately, then on every interval tick until the context
// is cancelled. Tick boundaries do not compensate for processing time;
// drift is acceptable and missed ticks are not replayed.
func (s *Service) Run(ctx context.Context) error {
	logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("entities", len(s.cfg.Entities)).
		Bool("weather", s.weather != nil).
		Msg("Starting polling loop")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping polling loop")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every configured entity in order, then the weather source.
// Each failure is logged and contained; later entities and the weather poll
// always still run.
func (s *Service) Tick(ctx context.Context) {
	for _, entity := range s.cfg.Entities {
		if err := s.pollEntity(ctx, entity); err != nil {
			logPollError(err, "thermostat", entity.ID)
		}
	}

	if s.weather != nil {
		if err := s.pollWeather(ctx); err != nil {
			logPollError(err, "weather", "")
		}
	}
}

func (s *Service) pollEntity(ctx context.Context, entity Entity) error {
	snapshot, err := s.source.Fetch(ctx, entity.ID)
	if err != nil {
		return err
	}

	points, next := metric.NormalizeThermostat(snapshot, entity.Config, s.dedup[entity.ID])
	s.submit(ctx, points)
	s.dedup[entity.ID] = next

	logger.Debug().
		Str("thermostat_id", entity.ID).
		Int("points", len(points)).
		Int("runtime_interval", next.LastRuntimeInterval).
		Msg("Processed thermostat")

	return nil
}

func (s *Service) pollWeather(ctx context.Context) error {
	obs, err := s.weather.Current(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	total, err := s.weather.DailyPrecipitation(ctx, now.UTC().Format(dateLayout))
	if err != nil {
		return err
	}

	points, next := metric.NormalizeWeather(obs, total, s.cfg.WeatherAlwaysCurrent, now, s.weatherState)
	s.submit(ctx, points)
	s.weatherState = next

	logger.Debug().
		Int("points", len(points)).
		Float64("precipitation_total", total).
		Msg("Processed weather")

	return nil
}

// submit forwards each point independently; a sink failure is logged and
// never blocks the remaining points.
func (s *Service) submit(ctx context.Context, points []metric.Point) {
	for i := range points {
		if err := s.snk.Submit(ctx, points[i]); err != nil {
			logPollError(err, "sink", points[i].Name)
		}
	}
}

func logPollError(err error, component, id string) {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		logger.ErrorWithCode(domainErr).
			Str("component", component).
			Str("id", id).
			Msg("Poll step failed; continuing")
		return
	}

	logger.Error().
		Err(err).
		Str("component", component).
		Str("id", id).
		Msg("Poll step failed; continuing")
}
