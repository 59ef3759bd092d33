package tuyable

import (
	"context"

	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// State is one entity state written to the host.
type State struct {
	EntityID    string
	UniqueID    string
	Address     string
	DeviceID    string
	Key         string
	DeviceClass string
	Value       any
	Unit        string
	Icon        string
	Attributes  map[string]any
	Available   bool
}

// RestoredState is the last persisted state of an entity.
type RestoredState struct {
	Value any
	Unit  string
}

// EntityRegistration describes an entity being added to the host.
type EntityRegistration struct {
	UniqueID    string
	EntityID    string
	Address     string
	DeviceID    string
	Description SensorDescription
}

// EntityRegistry records devices and their entities.
type EntityRegistry interface {
	RegisterDevice(ctx context.Context, device devicemanager.Device, info DeviceInfo) error
	RegisterEntity(ctx context.Context, entity EntityRegistration) error
}

// StateWriter stores and publishes entity state.
type StateWriter interface {
	WriteState(ctx context.Context, state State) error
}

// EventBus fires named events.
type EventBus interface {
	Fire(ctx context.Context, event Event) error
}

// StateRestorer returns the last persisted state of an entity. ok is
// false when nothing was persisted.
type StateRestorer interface {
	LastState(ctx context.Context, entityID string) (state RestoredState, ok bool, err error)
}

// Host is everything entities and coordinators need from the bridge.
type Host interface {
	EntityRegistry
	StateWriter
	EventBus
	StateRestorer
}
