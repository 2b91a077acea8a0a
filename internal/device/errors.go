package device

import "errors"

// Domain errors for the device package. Check them with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID or identifier does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose identifier is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrEntityNotFound is returned when an entity ID does not exist.
	ErrEntityNotFound = errors.New("device: entity not found")

	// ErrInvalidEntity is returned when entity validation fails.
	ErrInvalidEntity = errors.New("device: invalid entity")
)
