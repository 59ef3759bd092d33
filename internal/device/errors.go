package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrStateNotFound) {
//	    // nothing persisted yet
//	}
var (
	// ErrDeviceNotFound is returned when a device address is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrEntityNotFound is returned when an entity id is not registered.
	ErrEntityNotFound = errors.New("device: entity not found")

	// ErrStateNotFound is returned when an entity has no persisted state.
	ErrStateNotFound = errors.New("device: state not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidEntity is returned when entity validation fails.
	ErrInvalidEntity = errors.New("device: invalid entity")

	// ErrInvalidAddress is returned when a BLE address is malformed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidKey is returned when an entity key is malformed.
	ErrInvalidKey = errors.New("device: invalid key")

	// ErrInvalidHealthStatus is returned for an unknown health status.
	ErrInvalidHealthStatus = errors.New("device: invalid health status")

	// ErrInvalidSchedule is returned when a prune schedule does not parse.
	ErrInvalidSchedule = errors.New("device: invalid schedule")
)
