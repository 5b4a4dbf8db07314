package metric

import (
	"strconv"
	"time"

	"codeberg.org/mutker/thermopoll/internal/ecobee"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/weather"
)

const (
	windowSamples = 3
	sampleSpan    = 5 * time.Minute
	thermostatTag = "thermostat_name:"
	sensorNameTag = "sensor_name:"
	tenthsPerUnit = 10.0
	runtimePrefix = "ecobee.runtime."
	airQualPrefix = "ecobee.air_quality."
	sensorPrefix  = "ecobee.sensor."
	weatherPrefix = "weather."
)

// EntityConfig is the static per-thermostat emission configuration. The
// booleans gate the equipment-stage metrics; everything else is always
// written.
type EntityConfig struct {
	Name              string
	WriteAuxHeat1     bool
	WriteAuxHeat2     bool
	WriteHeatPump1    bool
	WriteHeatPump2    bool
	WriteCool1        bool
	WriteCool2        bool
	WriteHumidifier   bool
	WriteDehumidifier bool
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

func tenths(values []int, i int) float64 {
	if i < len(values) {
		return float64(values[i]) / tenthsPerUnit
	}
	return 0
}

func whole(values []int, i int) float64 {
	if i < len(values) {
		return float64(values[i])
	}
	return 0
}

// NormalizeThermostat turns one raw snapshot into metric points, suppressing
// runtime windows the backend has already seen. The returned state carries
// the snapshot's runtime marker unconditionally so it stays current even
// when nothing new was found; weather fields pass through untouched.
func NormalizeThermostat(t *ecobee.Thermostat, cfg EntityConfig, state DedupState) ([]Point, DedupState) {
	name := t.Name
	if name == "" {
		name = cfg.Name
	}
	tags := []string{thermostatTag + name}

	points := make([]Point, 0, 64)
	points = append(points, airQualityPoints(t, tags)...)

	newState := state
	marker := t.ExtendedRuntime.RuntimeInterval
	if marker != state.LastRuntimeInterval {
		runtimePoints, ok := runtimeWindowPoints(t, cfg, tags)
		if ok {
			points = append(points, runtimePoints...)
			newState.LastRuntimeInterval = marker
		}
		// A malformed reading timestamp leaves the marker alone so the
		// window is retried next poll.
	} else {
		newState.LastRuntimeInterval = marker
	}

	points = append(points, sensorPoints(t, tags)...)

	return points, newState
}

// Air quality readings are not interval-gated; re-emitting the same value at
// the same timestamp is idempotent on the backend.
func airQualityPoints(t *ecobee.Thermostat, tags []string) []Point {
	reportTime, err := ecobee.ParseTimestamp(t.Runtime.LastStatusModified)
	if err != nil {
		logger.Warn().
			Str("thermostat", t.Identifier).
			Str("timestamp", t.Runtime.LastStatusModified).
			Msg("Skipping air quality metrics: unparseable status timestamp")
		return nil
	}

	return []Point{
		gauge(airQualPrefix+"accuracy", reportTime, t.Runtime.ActualAQAccuracy, tags),
		gauge(airQualPrefix+"score", reportTime, t.Runtime.ActualAQScore, tags),
		gauge(airQualPrefix+"co2", reportTime, t.Runtime.ActualCO2, tags),
		gauge(airQualPrefix+"voc", reportTime, t.Runtime.ActualVOC, tags),
	}
}

// runtimeWindowPoints emits all three samples of the extended runtime
// window, timestamped at the previous, current and next 5-minute boundary
// around the base reading time.
func runtimeWindowPoints(t *ecobee.Thermostat, cfg EntityConfig, tags []string) ([]Point, bool) {
	ext := t.ExtendedRuntime
	baseTime, err := ecobee.ParseTimestamp(ext.LastReadingTimestamp)
	if err != nil {
		logger.Warn().
			Str("thermostat", t.Identifier).
			Str("timestamp", ext.LastReadingTimestamp).
			Msg("Skipping runtime metrics: unparseable reading timestamp")
		return nil, false
	}

	points := make([]Point, 0, windowSamples*16)
	for i := 0; i < windowSamples; i++ {
		reportTime := baseTime.Add(time.Duration(i-1) * sampleSpan)

		temperatureF := tenths(ext.ActualTemperature, i)
		heatSetPointF := tenths(ext.DesiredHeat, i)
		coolSetPointF := tenths(ext.DesiredCool, i)
		dmOffsetF := tenths(ext.DmOffset, i)

		points = append(points,
			gauge(runtimePrefix+"temperature_f", reportTime, temperatureF, tags),
			gauge(runtimePrefix+"temperature_c", reportTime, fahrenheitToCelsius(temperatureF), tags),
			gauge(runtimePrefix+"heat_set_point_f", reportTime, heatSetPointF, tags),
			gauge(runtimePrefix+"heat_set_point_c", reportTime, fahrenheitToCelsius(heatSetPointF), tags),
			gauge(runtimePrefix+"cool_set_point_f", reportTime, coolSetPointF, tags),
			gauge(runtimePrefix+"cool_set_point_c", reportTime, fahrenheitToCelsius(coolSetPointF), tags),
			gauge(runtimePrefix+"demand_mgmt_offset_f", reportTime, dmOffsetF, tags),
			gauge(runtimePrefix+"demand_mgmt_offset_c", reportTime, fahrenheitToCelsius(dmOffsetF), tags),
			gauge(runtimePrefix+"humidity", reportTime, whole(ext.ActualHumidity, i), tags),
			count(runtimePrefix+"fan_run_time", reportTime, whole(ext.Fan, i), tags),
		)

		if cfg.WriteHumidifier {
			points = append(points,
				gauge(runtimePrefix+"humidity_set_point", reportTime, whole(ext.DesiredHumidity, i), tags),
				count(runtimePrefix+"humidifier_run_time", reportTime, whole(ext.Humidifier, i), tags),
			)
		}
		if cfg.WriteDehumidifier {
			points = append(points,
				gauge(runtimePrefix+"dehumidity_set_point", reportTime, whole(ext.DesiredDehumidity, i), tags),
				count(runtimePrefix+"dehumidifier_run_time", reportTime, whole(ext.Dehumidifier, i), tags),
			)
		}
		if cfg.WriteAuxHeat1 {
			points = append(points, count(runtimePrefix+"aux_heat_1_run_time", reportTime, whole(ext.AuxHeat1, i), tags))
		}
		if cfg.WriteAuxHeat2 {
			points = append(points, count(runtimePrefix+"aux_heat_2_run_time", reportTime, whole(ext.AuxHeat2, i), tags))
		}
		if cfg.WriteHeatPump1 {
			points = append(points, count(runtimePrefix+"heat_pump_1_run_time", reportTime, whole(ext.HeatPump1, i), tags))
		}
		if cfg.WriteHeatPump2 {
			points = append(points, count(runtimePrefix+"heat_pump_2_run_time", reportTime, whole(ext.HeatPump2, i), tags))
		}
		if cfg.WriteCool1 {
			points = append(points, count(runtimePrefix+"cool_1_run_time", reportTime, whole(ext.Cool1, i), tags))
		}
		if cfg.WriteCool2 {
			points = append(points, count(runtimePrefix+"cool_2_run_time", reportTime, whole(ext.Cool2, i), tags))
		}
	}

	return points, true
}

// sensorPoints emits readings per sensor, per capability. Each capability is
// parsed independently; a malformed value is logged and skipped without
// affecting sibling sensors or capabilities.
func sensorPoints(t *ecobee.Thermostat, tags []string) []Point {
	sensorTime, err := ecobee.ParseTimestamp(t.UTCTime)
	if err != nil {
		logger.Warn().
			Str("thermostat", t.Identifier).
			Str("timestamp", t.UTCTime).
			Msg("Skipping sensor metrics: unparseable snapshot timestamp")
		return nil
	}

	var points []Point
	for _, sensor := range t.RemoteSensors {
		sensorTags := append(append([]string{}, tags...), sensorNameTag+sensor.Name)
		for _, capability := range sensor.Capability {
			switch capability.Type {
			case "temperature":
				raw, err := strconv.Atoi(capability.Value)
				if err != nil {
					logger.Warn().
						Str("sensor", sensor.Name).
						Str("value", capability.Value).
						Err(err).
						Msg("Skipping unreadable sensor temperature")
					continue
				}
				tempF := float64(raw) / tenthsPerUnit
				points = append(points,
					gauge(sensorPrefix+"temperature_f", sensorTime, tempF, sensorTags),
					gauge(sensorPrefix+"temperature_c", sensorTime, fahrenheitToCelsius(tempF), sensorTags),
				)
			case "occupancy":
				occupied := 0.0
				if capability.Value == "true" {
					occupied = 1.0
				}
				points = append(points, gauge(sensorPrefix+"occupied", sensorTime, occupied, sensorTags))
			}
		}
	}

	return points
}

// NormalizeWeather turns an outdoor observation and the cumulative daily
// precipitation total into metric points. Conditions are suppressed when the
// observation timestamp has not moved, unless alwaysCurrent is set, in which
// case they are stamped with now and emitted every poll. The precipitation
// delta is never negative: a shrinking cumulative total signals a counter
// reset (new day) and the new total is emitted outright.
func NormalizeWeather(obs *weather.Observation, precipTotal float64, alwaysCurrent bool, now time.Time, state DedupState) ([]Point, DedupState) {
	newState := state

	var points []Point
	if alwaysCurrent || !obs.Timestamp.Equal(state.LastWeatherTimestamp) {
		reportTime := obs.Timestamp
		if alwaysCurrent {
			reportTime = now
		}

		points = append(points,
			gauge(weatherPrefix+"temp", reportTime, obs.Temp, nil),
			gauge(weatherPrefix+"feels_like", reportTime, obs.FeelsLike, nil),
			gauge(weatherPrefix+"pressure", reportTime, obs.Pressure, nil),
			gauge(weatherPrefix+"humidity", reportTime, obs.Humidity, nil),
			gauge(weatherPrefix+"dew_point", reportTime, obs.DewPoint, nil),
			gauge(weatherPrefix+"uvi", reportTime, obs.UVI, nil),
			gauge(weatherPrefix+"clouds", reportTime, obs.Clouds, nil),
			gauge(weatherPrefix+"visibility", reportTime, obs.Visibility, nil),
			gauge(weatherPrefix+"wind_speed", reportTime, obs.WindSpeed, nil),
			gauge(weatherPrefix+"wind_deg", reportTime, obs.WindDeg, nil),
			gauge(weatherPrefix+"wind_gust", reportTime, obs.WindGust, nil),
			gauge(weatherPrefix+"moon_phase", reportTime, obs.MoonPhase, nil),
		)
		newState.LastWeatherTimestamp = obs.Timestamp

		delta := precipTotal - state.LastPrecipTotal
		if delta < 0 {
			// Cumulative counter reset, usually the start of a new day.
			delta = precipTotal
		}
		if delta > 0 {
			points = append(points, count(weatherPrefix+"precipitation_volume", reportTime, delta, nil))
		}
		newState.LastPrecipTotal = precipTotal
	}

	return points, newState
}
