package project

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Bounds for a plausible fermentation target in degrees Celsius.
const (
	MinTargetTemperature = -10.0
	MaxTargetTemperature = 50.0
)

// ValidateProject checks a project before it is persisted.
func ValidateProject(p *Project) error {
	if p == nil {
		return ErrInvalidProject
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if p.SensorRef == "" {
		return fmt.Errorf("%w: sensor_ref is required", ErrInvalidProject)
	}
	if p.OutletRef == "" {
		return fmt.Errorf("%w: outlet_ref is required", ErrInvalidProject)
	}
	if err := ValidateTarget(p.TargetTemperature); err != nil {
		return err
	}
	if !p.ControlMode.Valid() {
		return fmt.Errorf("%w: control_mode %q", ErrInvalidProject, p.ControlMode)
	}
	return nil
}

// ValidateTarget checks a target temperature.
func ValidateTarget(target float64) error {
	if math.IsNaN(target) || target < MinTargetTemperature || target > MaxTargetTemperature {
		return fmt.Errorf("%w: target_temperature must be between %.0f and %.0f",
			ErrInvalidProject, MinTargetTemperature, MaxTargetTemperature)
	}
	return nil
}

// GenerateID returns a new random project ID.
func GenerateID() string {
	return uuid.New().String()
}
