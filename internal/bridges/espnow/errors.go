package espnow

import "errors"

// Domain errors for the ESP-NOW bridge package.
var (
	// ErrNotProtocolLine is returned for lines that do not start with '{'.
	// Gateways print boot banners and debug text on the same port.
	ErrNotProtocolLine = errors.New("espnow: not a protocol line")

	// ErrInvalidFrame is returned when a line is not a valid JSON object.
	ErrInvalidFrame = errors.New("espnow: invalid frame")

	// ErrMissingMAC is returned when a frame has no string MAC field.
	ErrMissingMAC = errors.New("espnow: frame has no MAC address")

	// ErrInvalidTriggerConfig is returned when a "^" key value is not
	// null, a string or an object.
	ErrInvalidTriggerConfig = errors.New("espnow: invalid device trigger config")

	// ErrDeviceNotFound is returned when no node has the given device ID.
	ErrDeviceNotFound = errors.New("espnow: device not found")

	// ErrTriggerNotFound is returned when attaching to a trigger key the
	// device has never defined.
	ErrTriggerNotFound = errors.New("espnow: trigger not found for device")

	// ErrBridgeStopped is returned by operations on a stopped bridge.
	ErrBridgeStopped = errors.New("espnow: bridge stopped")
)
