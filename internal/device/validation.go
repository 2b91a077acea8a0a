package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxNameLength bounds device and entity display names.
const maxNameLength = 200

// ValidateDeviceInfo checks the fields GetOrCreate needs.
func ValidateDeviceInfo(info DeviceInfo) error {
	if strings.TrimSpace(info.Domain) == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidDevice)
	}
	if strings.TrimSpace(info.Identifier) == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidDevice)
	}
	if len(info.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// ValidateEntity checks that an entity is well formed before persisting it.
func ValidateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	switch e.Platform {
	case PlatformSensor, PlatformBinarySensor:
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidEntity, e.Platform)
	}
	if PlatformOf(e.EntityID) != e.Platform {
		return fmt.Errorf("%w: entity id %q does not start with %q", ErrInvalidEntity, e.EntityID, e.Platform+".")
	}
	if e.UniqueID == "" {
		return fmt.Errorf("%w: unique id is required", ErrInvalidEntity)
	}
	if e.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidEntity)
	}
	if len(e.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidEntity, maxNameLength)
	}
	return nil
}

// GenerateID creates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}
