package device

import "time"

// HealthStatus is the connectivity of a device as seen by the bridge.
type HealthStatus string

// Health status values.
const (
	HealthStatusOnline  HealthStatus = "online"
	HealthStatusOffline HealthStatus = "offline"
	HealthStatusUnknown HealthStatus = "unknown"
)

// AllHealthStatuses returns every valid health status.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{HealthStatusOnline, HealthStatusOffline, HealthStatusUnknown}
}

// Device is a registered BLE device. ID is the normalised address.
type Device struct {
	ID           string       `json:"id"`
	DeviceID     string       `json:"device_id"`
	Name         string       `json:"name"`
	Manufacturer string       `json:"manufacturer"`
	Model        string       `json:"model"`
	HWVersion    string       `json:"hw_version"`
	SWVersion    string       `json:"sw_version"`
	Category     string       `json:"category"`
	ProductID    string       `json:"product_id"`
	HealthStatus HealthStatus `json:"health_status"`
	LastSeen     *time.Time   `json:"last_seen,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DeepCopy returns a copy that shares no memory with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		cp.LastSeen = &t
	}
	return &cp
}

// Entity is a registered sensor entity. DeviceID is the owning device's
// address.
type Entity struct {
	UniqueID       string    `json:"unique_id"`
	EntityID       string    `json:"entity_id"`
	DeviceID       string    `json:"device_id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Icon           string    `json:"icon,omitempty"`
	DeviceClass    string    `json:"device_class,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	StateClass     string    `json:"state_class,omitempty"`
	EntityCategory string    `json:"entity_category,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EntityState is the last state written for an entity.
//
// Value round-trips through JSON in storage, so numbers read back from
// the repository are float64.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	Value      any            `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Available  bool           `json:"available"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DeepCopy returns a copy that shares no memory with s.
func (s *EntityState) DeepCopy() *EntityState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Value = deepCopyValue(s.Value)
	cp.Attributes = deepCopyMap(s.Attributes)
	return &cp
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	default:
		return val
	}
}
