package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "tuya_ble"

// Topics builds the bridge's MQTT topic hierarchy under a configurable prefix.
//
//	{prefix}/bridge/status              bridge online/offline (LWT)
//	{prefix}/health                     bridge health report
//	{prefix}/state/{entity_id}          entity state (retained)
//	{prefix}/config/{entity_id}         entity description (retained)
//	{prefix}/event/{event_type}         bus events
//	{prefix}/discovery/{address}        unconfigured devices seen on air
//	{prefix}/manager/{address}/info     identity from the device manager
//	{prefix}/manager/{address}/status   connection status from the device manager
//	{prefix}/manager/{address}/datapoints  datapoint updates from the device manager
//
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, or DefaultTopicPrefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// BridgeStatus returns the bridge liveness topic carrying the LWT.
// Example: tuya_ble/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.root())
}

// Health returns the bridge health topic.
// Example: tuya_ble/health
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health", t.root())
}

// EntityState returns the state topic of an entity.
// Example: tuya_ble/state/sensor.bf1234_battery
func (t Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", t.root(), entityID)
}

// EntityConfig returns the description topic of an entity.
// Example: tuya_ble/config/sensor.bf1234_battery
func (t Topics) EntityConfig(entityID string) string {
	return fmt.Sprintf("%s/config/%s", t.root(), entityID)
}

// Event returns the topic for a bus event type.
// Example: tuya_ble/event/tuya_ble_lock_alarm_event
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.root(), eventType)
}

// Discovery returns the topic announcing an unconfigured device.
// Example: tuya_ble/discovery/DC:23:4D:11:22:33
func (t Topics) Discovery(address string) string {
	return fmt.Sprintf("%s/discovery/%s", t.root(), address)
}

// ManagerInfo returns the identity topic the device manager publishes for a device.
func (t Topics) ManagerInfo(address string) string {
	return t.manager(address, KindInfo)
}

// ManagerStatus returns the connection status topic the device manager publishes for a device.
func (t Topics) ManagerStatus(address string) string {
	return t.manager(address, KindStatus)
}

// ManagerDatapoints returns the datapoint update topic the device manager publishes for a device.
// Example: tuya_ble/manager/DC:23:4D:11:22:33/datapoints
func (t Topics) ManagerDatapoints(address string) string {
	return t.manager(address, KindDatapoints)
}

func (t Topics) manager(address, kind string) string {
	return fmt.Sprintf("%s/manager/%s/%s", t.root(), address, kind)
}

// ManagerCredentials returns the retained topic the bridge publishes a
// device's pairing credentials on for the device manager.
// Example: tuya_ble/manager/DC:23:4D:11:22:33/credentials
func (t Topics) ManagerCredentials(address string) string {
	return fmt.Sprintf("%s/manager/%s/credentials", t.root(), address)
}

// Kinds of message the device manager publishes per device.
const (
	KindInfo       = "info"
	KindStatus     = "status"
	KindDatapoints = "datapoints"
)

// AllManager returns a pattern matching one kind of manager topic for
// every device.
// Pattern: tuya_ble/manager/+/status
func (t Topics) AllManager(kind string) string {
	return t.manager("+", kind)
}

func validKind(kind string) bool {
	return kind == KindInfo || kind == KindStatus || kind == KindDatapoints
}

// ManagerAddress extracts the device address from a manager topic.
// It returns false when topic is not {prefix}/manager/{address}/{kind}.
func (t Topics) ManagerAddress(topic string) (address, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/manager/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
