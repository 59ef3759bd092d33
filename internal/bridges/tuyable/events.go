package tuyable

import (
	"github.com/nerrad567/tuyable-bridge/internal/catalog"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// Bus event types.
const (
	EventFingerbotButtonPressed = "tuya_ble_fingerbot_button_pressed"
	EventLockAlarm              = "tuya_ble_lock_alarm_event"
	EventLockUnlockBLE          = "tuya_ble_lock_unlock_ble_event"
	EventLockUnlockFingerprint  = "tuya_ble_lock_unlock_fingerprint_event"
	EventLockUnlockPassword     = "tuya_ble_lock_unlock_password_event"
)

const (
	lockEventAlarm             = "alarm_lock"
	lockEventUnlockBLE         = "unlock_ble"
	lockEventUnlockFingerprint = "unlock_fingerprint"
	lockEventUnlockPassword    = "unlock_password"
)

const (
	eventDataAddress  = "address"
	eventDataDeviceID = "device_id"
	eventDataEvent    = "event"
	eventDataValue    = "value"
)

// Event is one bus notification raised from device updates.
type Event struct {
	Type string
	Data map[string]any
}

// buttonPressEvents returns the fingerbot button events raised by updates.
// Only products with a manual control datapoint report presses.
func buttonPressEvents(device devicemanager.Device, fb *catalog.FingerbotInfo, updates []devicemanager.Datapoint) []Event {
	if fb == nil || fb.ManualControl == 0 {
		return nil
	}
	var events []Event
	for _, u := range updates {
		if u.ID != fb.Switch || !u.ChangedByDevice {
			continue
		}
		events = append(events, Event{
			Type: EventFingerbotButtonPressed,
			Data: map[string]any{
				eventDataAddress:  device.Address(),
				eventDataDeviceID: device.DeviceID(),
			},
		})
	}
	return events
}

// lockEvents returns the lock events raised by updates. Each update
// raises at most one event, checked in alarm, BLE, fingerprint, password
// order.
func lockEvents(device devicemanager.Device, lock *catalog.LockInfo, updates []devicemanager.Datapoint) []Event {
	if lock == nil {
		return nil
	}
	var events []Event
	for _, u := range updates {
		if !u.ChangedByDevice {
			continue
		}
		var eventType, name string
		switch u.ID {
		case lock.AlarmLock:
			eventType, name = EventLockAlarm, lockEventAlarm
		case lock.UnlockBLE:
			eventType, name = EventLockUnlockBLE, lockEventUnlockBLE
		case lock.UnlockFingerprint:
			eventType, name = EventLockUnlockFingerprint, lockEventUnlockFingerprint
		case lock.UnlockPassword:
			eventType, name = EventLockUnlockPassword, lockEventUnlockPassword
		default:
			continue
		}
		events = append(events, Event{
			Type: eventType,
			Data: map[string]any{
				eventDataAddress:  device.Address(),
				eventDataDeviceID: device.DeviceID(),
				eventDataEvent:    name,
				eventDataValue:    u.Value,
			},
		})
	}
	return events
}
