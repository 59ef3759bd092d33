package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensor        = "tuya_ble_sensor"
	MeasurementAdvertisement = "ble_advertisement"
)

// SensorReading is one numeric sensor state.
type SensorReading struct {
	Address     string
	DeviceID    string
	EntityID    string
	Key         string
	DeviceClass string
	Unit        string
	Value       float64
	Time        time.Time
}

// WriteSensorReading records a numeric sensor state. Empty tags are omitted
// and a zero Time means now.
func (c *Client) WriteSensorReading(r SensorReading) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"address":   r.Address,
		"entity_id": r.EntityID,
		"key":       r.Key,
	}
	for k, v := range map[string]string{
		"device_id":    r.DeviceID,
		"device_class": r.DeviceClass,
		"unit":         r.Unit,
	} {
		if v != "" {
			tags[k] = v
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writer.WritePoint(write.NewPoint(MeasurementSensor, tags, map[string]any{"value": r.Value}, ts))
}

// WriteAdvertisement records the signal strength of a received advertisement.
func (c *Client) WriteAdvertisement(address, name string, rssi int, seenAt time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"address": address}
	if name != "" {
		tags["name"] = name
	}
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	c.writer.WritePoint(write.NewPoint(MeasurementAdvertisement, tags, map[string]any{"rssi": int64(rssi)}, seenAt))
}
