package devicemanager

import (
	"context"
	"fmt"
	"time"
)

// DatapointType is the vendor encoding of a datapoint value.
type DatapointType int

// Datapoint types, numbered as on the wire.
const (
	DatapointTypeRaw DatapointType = iota
	DatapointTypeBool
	DatapointTypeValue
	DatapointTypeString
	DatapointTypeEnum
	DatapointTypeBitmap
)

var datapointTypeNames = [...]string{"raw", "bool", "value", "string", "enum", "bitmap"}

func (t DatapointType) String() string {
	if t < 0 || int(t) >= len(datapointTypeNames) {
		return fmt.Sprintf("DatapointType(%d)", int(t))
	}
	return datapointTypeNames[t]
}

// ParseDatapointType converts a name such as "enum" to its DatapointType.
func ParseDatapointType(name string) (DatapointType, error) {
	for i, n := range datapointTypeNames {
		if n == name {
			return DatapointType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown datapoint type %q", ErrInvalidPayload, name)
}

// Datapoint is one vendor key/value point reported by a device.
//
// Value holds bool for bool datapoints, int64 for value/enum/bitmap,
// string for string and []byte for raw. A zero Timestamp means the
// device did not report one.
type Datapoint struct {
	ID              int
	Type            DatapointType
	Value           any
	Timestamp       time.Time
	ChangedByDevice bool
}

// Datapoints is a read-only view of a device's datapoint table.
type Datapoints interface {
	// Get returns the datapoint with the given id.
	Get(id int) (Datapoint, bool)

	// HasID reports whether the datapoint exists and, when types are
	// given, whether its type is one of them.
	HasID(id int, types ...DatapointType) bool
}

// Device is the device manager's view of one BLE device.
//
// Register* methods return a function that removes the callback.
// Callbacks run on the manager's delivery goroutine and must not block.
type Device interface {
	Address() string
	DeviceID() string
	Name() string
	Category() string
	ProductID() string
	ProductModel() string
	ProductName() string
	HardwareVersion() string
	DeviceVersion() string
	ProtocolVersion() string

	// RSSI returns the last known signal strength, if any.
	RSSI() (int, bool)

	Datapoints() Datapoints

	RegisterCallback(fn func(updates []Datapoint)) (unregister func())
	RegisterConnectedCallback(fn func()) (unregister func())
	RegisterDisconnectedCallback(fn func()) (unregister func())

	// RegisterRSSICallback runs fn when only the signal strength changed.
	RegisterRSSICallback(fn func()) (unregister func())
}

// Credentials are what the device manager needs to talk to a device.
type Credentials struct {
	Address      string `json:"address"`
	UUID         string `json:"uuid"`
	LocalKey     string `json:"-"`
	DeviceID     string `json:"device_id"`
	Category     string `json:"category"`
	ProductID    string `json:"product_id"`
	DeviceName   string `json:"device_name"`
	ProductModel string `json:"product_model"`
	ProductName  string `json:"product_name"`
}

// CredentialsProvider looks up device credentials by address.
type CredentialsProvider interface {
	// DeviceCredentials returns ErrCredentialsNotFound for unknown devices.
	// forceUpdate bypasses any cache.
	DeviceCredentials(ctx context.Context, address string, forceUpdate bool) (*Credentials, error)
}

// Table is an immutable datapoint table keyed by id.
type Table map[int]Datapoint

// Get implements Datapoints.
func (t Table) Get(id int) (Datapoint, bool) {
	dp, ok := t[id]
	return dp, ok
}

// HasID implements Datapoints.
func (t Table) HasID(id int, types ...DatapointType) bool {
	dp, ok := t[id]
	if !ok {
		return false
	}
	if len(types) == 0 {
		return true
	}
	for _, typ := range types {
		if dp.Type == typ {
			return true
		}
	}
	return false
}
