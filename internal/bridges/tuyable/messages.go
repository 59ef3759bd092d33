package tuyable

import (
	"time"

	"github.com/google/uuid"
)

// StateMessage is published retained to {prefix}/state/{entity_id}.
type StateMessage struct {
	EntityID    string         `json:"entity_id"`
	UniqueID    string         `json:"unique_id"`
	Address     string         `json:"address"`
	Key         string         `json:"key"`
	State       any            `json:"state"`
	Unit        string         `json:"unit,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Available   bool           `json:"available"`
	Timestamp   time.Time      `json:"timestamp"`
}

// EventMessage is published to {prefix}/event/{event_type}.
type EventMessage struct {
	// ID is a random UUID so consumers can drop redelivered events.
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// EntityConfigMessage is published retained to {prefix}/config/{entity_id}.
type EntityConfigMessage struct {
	UniqueID         string     `json:"unique_id"`
	EntityID         string     `json:"entity_id"`
	Address          string     `json:"address"`
	DeviceID         string     `json:"device_id"`
	Key              string     `json:"key"`
	Name             string     `json:"name"`
	Icon             string     `json:"icon,omitempty"`
	DeviceClass      string     `json:"device_class,omitempty"`
	Unit             string     `json:"unit,omitempty"`
	StateClass       string     `json:"state_class,omitempty"`
	EntityCategory   string     `json:"entity_category,omitempty"`
	Options          []string   `json:"options,omitempty"`
	EnabledByDefault bool       `json:"enabled_by_default"`
	StateTopic       string     `json:"state_topic"`
	Device           DeviceInfo `json:"device"`
}

// DiscoveryMessage is published retained to {prefix}/discovery/{address}
// the first time an unmanaged device is heard.
type DiscoveryMessage struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	RSSI      int       `json:"rssi"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the bridge's reported operational state.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge runs but cannot reach MQTT.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained to {prefix}/health.
type HealthMessage struct {
	Bridge           string       `json:"bridge"`
	Timestamp        time.Time    `json:"timestamp"`
	Status           HealthStatus `json:"status"`
	Version          string       `json:"version,omitempty"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	DevicesManaged   int          `json:"devices_managed"`
	DevicesConnected int          `json:"devices_connected"`
	Reason           string       `json:"reason,omitempty"`
}

// NewEventMessage wraps a bus event for publishing.
func NewEventMessage(ev Event) EventMessage {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	return EventMessage{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, managed, connected int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:           bridgeID,
		Timestamp:        time.Now().UTC(),
		Status:           status,
		Version:          version,
		UptimeSeconds:    int64(time.Since(startTime).Seconds()),
		DevicesManaged:   managed,
		DevicesConnected: connected,
	}
}

func newStateMessage(st State) StateMessage {
	return StateMessage{
		EntityID:    st.EntityID,
		UniqueID:    st.UniqueID,
		Address:     st.Address,
		Key:         st.Key,
		State:       st.Value,
		Unit:        st.Unit,
		Icon:        st.Icon,
		DeviceClass: st.DeviceClass,
		Attributes:  st.Attributes,
		Available:   st.Available,
		Timestamp:   time.Now().UTC(),
	}
}

func newEntityConfigMessage(reg EntityRegistration, stateTopic string, device DeviceInfo) EntityConfigMessage {
	desc := reg.Description
	name := desc.Name
	if name == "" {
		name = desc.Key
	}
	return EntityConfigMessage{
		UniqueID:         reg.UniqueID,
		EntityID:         reg.EntityID,
		Address:          reg.Address,
		DeviceID:         reg.DeviceID,
		Key:              desc.Key,
		Name:             name,
		Icon:             desc.Icon,
		DeviceClass:      desc.DeviceClass,
		Unit:             desc.Unit,
		StateClass:       desc.StateClass,
		EntityCategory:   desc.EntityCategory,
		Options:          desc.Options,
		EnabledByDefault: desc.EnabledByDefault,
		StateTopic:       stateTopic,
		Device:           device,
	}
}
