package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/thermopoll/internal/config"
	"codeberg.org/mutker/thermopoll/internal/ecobee"
	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/metric"
	"codeberg.org/mutker/thermopoll/internal/pid"
	"codeberg.org/mutker/thermopoll/internal/poller"
	"codeberg.org/mutker/thermopoll/internal/sink"
	"codeberg.org/mutker/thermopoll/internal/transport"
	"codeberg.org/mutker/thermopoll/internal/weather"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		fatal(err, "Failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	svc, snk, err := build()
	if err != nil {
		fatal(err, "Failed to initialize")
	}
	defer func() {
		if err := snk.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sink")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error in polling loop")
	}
	logger.Info().Msg("Exiting...")
}

func build() (*poller.Service, sink.Sink, error) {
	httpc := transport.NewClient()

	store := ecobee.NewFileStore(cfg.Ecobee.TokenFile)
	manager := ecobee.NewManager(cfg.Ecobee.APIKey, store, httpc)
	source := ecobee.NewClient(manager, httpc)

	var weatherSrc poller.WeatherSource
	if cfg.Weather.Enabled {
		weatherSrc = weather.NewClient(cfg.Weather.APIKey, cfg.Weather.Latitude, cfg.Weather.Longitude, httpc)
	}

	snk, err := sink.NewSink(sink.Config{
		Enabled: cfg.Datadog.Enabled && !cfg.DryRun,
		APIKey:  cfg.Datadog.APIKey,
		AppKey:  cfg.Datadog.AppKey,
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := poller.New(poller.Config{
		Interval:             time.Duration(cfg.Interval) * time.Second,
		Entities:             entities(cfg.Thermostats),
		WeatherAlwaysCurrent: cfg.Weather.AlwaysWriteAsCurrent,
	}, source, weatherSrc, snk)
	if err != nil {
		return nil, nil, err
	}

	return svc, snk, nil
}

func entities(thermostats []config.ThermostatConfig) []poller.Entity {
	out := make([]poller.Entity, 0, len(thermostats))
	for _, t := range thermostats {
		out = append(out, poller.Entity{
			ID: t.ID,
			Config: metric.EntityConfig{
				Name:              t.Name,
				WriteAuxHeat1:     t.WriteAuxHeat1,
				WriteAuxHeat2:     t.WriteAuxHeat2,
				WriteHeatPump1:    t.WriteHeatPump1,
				WriteHeatPump2:    t.WriteHeatPump2,
				WriteCool1:        t.WriteCool1,
				WriteCool2:        t.WriteCool2,
				WriteHumidifier:   t.WriteHumidifier,
				WriteDehumidifier: t.WriteDehumidifier,
			},
		})
	}

	return out
}

func fatal(err error, msg string) {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		logger.FatalWithCode(domainErr).Msg(msg)
		return
	}
	logger.Fatal().Err(err).Msg(msg)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
