package metric

import "time"

// DedupState is the per-entity memory preventing re-emission of telemetry
// the backend already has. The zero value means "never written": a zero
// runtime marker differs from any real vendor marker, so the first poll
// after process start always emits. State is volatile on purpose; it is
// owned by the poller and passed by value through the normalizers.
type DedupState struct {
	// LastRuntimeInterval is the vendor's marker for the most recently
	// emitted 5-minute window. Compared for equality only.
	LastRuntimeInterval int

	// LastWeatherTimestamp is the observation time of the last emitted
	// weather conditions.
	LastWeatherTimestamp time.Time

	// LastPrecipTotal is the cumulative daily precipitation total at the
	// last emission; deltas are computed against it.
	LastPrecipTotal float64
}
