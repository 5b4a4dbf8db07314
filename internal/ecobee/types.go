package ecobee

import "time"

// TimeLayout is the timestamp layout used throughout the vendor API. The
// values carry no zone indicator and are documented as UTC.
const TimeLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses a vendor timestamp as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// Runtime carries the thermostat's current state. Only the air quality
// fields and the modification timestamp are consumed here.
type Runtime struct {
	LastStatusModified string  `json:"lastStatusModified"`
	ActualAQAccuracy   float64 `json:"actualAQAccuracy"`
	ActualAQScore      float64 `json:"actualAQScore"`
	ActualCO2          float64 `json:"actualCO2"`
	ActualVOC          float64 `json:"actualVOC"`
}

// ExtendedRuntime is the 3-sample telemetry window: index 0 is the previous
// 5-minute reading, 1 the most recently finalized one and 2 the vendor's
// forward projection. RuntimeInterval identifies the finalized window and is
// compared for equality only.
type ExtendedRuntime struct {
	RuntimeInterval      int    `json:"runtimeInterval"`
	LastReadingTimestamp string `json:"lastReadingTimestamp"`
	ActualTemperature    []int  `json:"actualTemperature"`
	DesiredHeat          []int  `json:"desiredHeat"`
	DesiredCool          []int  `json:"desiredCool"`
	DmOffset             []int  `json:"dmOffset"`
	ActualHumidity       []int  `json:"actualHumidity"`
	DesiredHumidity      []int  `json:"desiredHumidity"`
	DesiredDehumidity    []int  `json:"desiredDehumidity"`
	Fan                  []int  `json:"fan"`
	AuxHeat1             []int  `json:"auxHeat1"`
	AuxHeat2             []int  `json:"auxHeat2"`
	HeatPump1            []int  `json:"heatPump1"`
	HeatPump2            []int  `json:"heatPump2"`
	Cool1                []int  `json:"cool1"`
	Cool2                []int  `json:"cool2"`
	Humidifier           []int  `json:"humidifier"`
	Dehumidifier         []int  `json:"dehumidifier"`
}

// SensorCapability is one reading of a remote sensor. Values are strings on
// the wire regardless of type.
type SensorCapability struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type RemoteSensor struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Capability []SensorCapability `json:"capability"`
}

// Thermostat is the decoded per-entity snapshot for one poll.
type Thermostat struct {
	Identifier      string          `json:"identifier"`
	Name            string          `json:"name"`
	UTCTime         string          `json:"utcTime"`
	Runtime         Runtime         `json:"runtime"`
	ExtendedRuntime ExtendedRuntime `json:"extendedRuntime"`
	RemoteSensors   []RemoteSensor  `json:"remoteSensors"`
}
