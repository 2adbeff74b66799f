// Package telemetry defines the time-series records produced by the
// control loop: sensor samples and outlet actuation events.
package telemetry

import "time"

// SampleKind names what a sample measures. It doubles as the
// time-series measurement name.
type SampleKind string

const (
	KindTemperature SampleKind = "temperature"
	KindHumidity    SampleKind = "humidity"
	KindDensity     SampleKind = "density"
)

// Valid reports whether k is a recognised sample kind.
func (k SampleKind) Valid() bool {
	switch k {
	case KindTemperature, KindHumidity, KindDensity:
		return true
	}
	return false
}

// Source says who caused an actuation.
type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
)

// Sample is one observed value for a project.
type Sample struct {
	Timestamp time.Time  `json:"timestamp"`
	ProjectID string     `json:"project_id"`
	Kind      SampleKind `json:"kind"`
	Value     float64    `json:"value"`
}

// ActuationEvent records a change of commanded outlet state.
type ActuationEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ProjectID string    `json:"project_id"`

	// State is true when the outlet was switched on.
	State  bool   `json:"state"`
	Source Source `json:"source"`

	// TemperatureAtChange is the reading the decision was based on.
	// Manual commands carry the last stored reading, if any.
	TemperatureAtChange *float64 `json:"temperature_at_change,omitempty"`
}

// OutletStateName renders an outlet state for logs and payloads.
func OutletStateName(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
