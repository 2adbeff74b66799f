package device

import "errors"

// Domain errors for the device package, checked with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidKind is returned when a kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidAddress is returned when a direct address is malformed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidEntityID is returned when a hub entity ID is malformed.
	ErrInvalidEntityID = errors.New("device: invalid hub entity id")
)
