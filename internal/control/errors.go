package control

import "errors"

// Errors surfaced by the control loop and the manual outlet command.
var (
	// ErrMalformedSensorValue is returned when a sensor state is not a finite number.
	ErrMalformedSensorValue = errors.New("malformed sensor value")

	// ErrConfiguration is returned when a project references a device that
	// is missing, of the wrong kind, or lacks a usable identifier.
	ErrConfiguration = errors.New("configuration error")

	// ErrPersistence is returned when the outlet was switched but the new
	// state could not be stored.
	ErrPersistence = errors.New("outlet state not persisted")

	// ErrManualModeRequired is returned when a manual command targets a
	// project under automatic control.
	ErrManualModeRequired = errors.New("project is under automatic control")

	// ErrInvalidDeps is returned by NewLoop when a required collaborator is missing.
	ErrInvalidDeps = errors.New("invalid loop dependencies")
)
