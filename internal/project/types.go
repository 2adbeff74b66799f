package project

import "time"

// ControlMode selects who drives the heating outlet.
type ControlMode string

const (
	// ModeAutomatic lets the control loop switch the outlet.
	ModeAutomatic ControlMode = "automatic"

	// ModeManual leaves the outlet to explicit commands.
	ModeManual ControlMode = "manual"
)

// Valid reports whether m is a recognised mode.
func (m ControlMode) Valid() bool {
	return m == ModeAutomatic || m == ModeManual
}

// Project is one fermentation vessel under monitoring.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// SensorRef and OutletRef are device IDs.
	SensorRef string `json:"sensor_ref"`
	OutletRef string `json:"outlet_ref"`

	// TargetTemperature is in degrees Celsius.
	TargetTemperature float64 `json:"target_temperature"`

	// CurrentTemperature is nil until the first successful reading.
	CurrentTemperature *float64 `json:"current_temperature,omitempty"`

	// OutletActive is the last commanded outlet state.
	OutletActive bool        `json:"outlet_active"`
	ControlMode  ControlMode `json:"control_mode"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
