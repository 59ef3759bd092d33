package tuyable

import "errors"

// Domain errors for the Tuya BLE bridge package.
var (
	// ErrMissingDependency is returned by NewBridge when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("tuyable: missing dependency")

	// ErrDeviceNotFound is returned when an address is not managed by the bridge.
	ErrDeviceNotFound = errors.New("tuyable: device not found")

	// ErrStateWriteFailed is returned when an entity state could not be
	// published or persisted.
	ErrStateWriteFailed = errors.New("tuyable: state write failed")

	// ErrEventFailed is returned when a bus event could not be published.
	ErrEventFailed = errors.New("tuyable: event publish failed")
)
