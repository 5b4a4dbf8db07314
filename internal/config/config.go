package config

import (
	"os"
	"path/filepath"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultInterval  = 300 // seconds; vendor finalizes runtime windows every 5 minutes
	defaultTokenFile = "ecobee_token.json"
)

// ThermostatConfig describes one polled thermostat and which optional
// equipment metrics are written for it. Immutable after load.
type ThermostatConfig struct {
	ID                string `mapstructure:"id"`
	Name              string `mapstructure:"name"`
	WriteAuxHeat1     bool   `mapstructure:"write_aux_heat_1"`
	WriteAuxHeat2     bool   `mapstructure:"write_aux_heat_2"`
	WriteHeatPump1    bool   `mapstructure:"write_heat_pump_1"`
	WriteHeatPump2    bool   `mapstructure:"write_heat_pump_2"`
	WriteCool1        bool   `mapstructure:"write_cool_1"`
	WriteCool2        bool   `mapstructure:"write_cool_2"`
	WriteHumidifier   bool   `mapstructure:"write_humidifier"`
	WriteDehumidifier bool   `mapstructure:"write_dehumidifier"`
}

type EcobeeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	TokenFile string `mapstructure:"token_file"`
}

type WeatherConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	APIKey               string  `mapstructure:"api_key"`
	Latitude             float64 `mapstructure:"latitude"`
	Longitude            float64 `mapstructure:"longitude"`
	AlwaysWriteAsCurrent bool    `mapstructure:"always_write_as_current"`
}

type DatadogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	AppKey  string `mapstructure:"app_key"`
}

type Config struct {
	Interval    int                `mapstructure:"interval"`
	WorkDir     string             `mapstructure:"work_dir"`
	Debug       bool               `mapstructure:"debug"`
	Verbose     bool               `mapstructure:"verbose"`
	DryRun      bool               `mapstructure:"dry_run"`
	Ecobee      EcobeeConfig       `mapstructure:"ecobee"`
	Weather     WeatherConfig      `mapstructure:"weather"`
	Datadog     DatadogConfig      `mapstructure:"datadog"`
	Thermostats []ThermostatConfig `mapstructure:"thermostats"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("thermopoll", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to the configuration file")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("dry-run", false, "Log metric points instead of submitting them")
	fs.Int("interval", defaultInterval, "Seconds between polling ticks")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("weather.enabled", true)
	v.SetDefault("datadog.enabled", true)

	if *configFile == "" {
		*configFile = os.Getenv("THERMOPOLL_CONFIG")
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName("thermopoll.conf")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command line flags override config file values
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "dry-run":
			v.Set("dry_run", f.Value.String())
		case "config":
		default:
			v.Set(f.Name, f.Value.String())
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if config.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
		config.WorkDir = wd
	}
	if config.Ecobee.TokenFile == "" {
		config.Ecobee.TokenFile = filepath.Join(config.WorkDir, defaultTokenFile)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the invariants that are fatal at startup. Everything else
// is recoverable at runtime and handled inside the polling loop.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Ecobee.APIKey == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "ecobee.api_key is required")
	}
	if len(c.Thermostats) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "at least one thermostat must be configured")
	}
	for i := range c.Thermostats {
		if c.Thermostats[i].ID == "" {
			return errFactory.WithMessage(errors.ErrMissingConfig, "thermostat id is required")
		}
	}
	if c.Weather.Enabled && c.Weather.APIKey == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "weather.api_key is required when weather polling is enabled")
	}
	if c.Datadog.Enabled && !c.DryRun && (c.Datadog.APIKey == "" || c.Datadog.AppKey == "") {
		return errFactory.WithMessage(errors.ErrMissingConfig, "datadog.api_key and datadog.app_key are required")
	}

	return nil
}
