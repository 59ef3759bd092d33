package scanner

import (
	"tinygo.org/x/bluetooth"
)

// tuyaServiceUUID is advertised by Tuya BLE devices.
var tuyaServiceUUID = bluetooth.New16BitUUID(0xA201)

// bluetoothAdapter drives a real radio through tinygo bluetooth.
type bluetoothAdapter struct {
	adapter *bluetooth.Adapter
}

// NewBluetoothAdapter returns an Adapter over the system's default radio.
func NewBluetoothAdapter() Adapter {
	return &bluetoothAdapter{adapter: bluetooth.DefaultAdapter}
}

func (b *bluetoothAdapter) Enable() error {
	return b.adapter.Enable()
}

func (b *bluetoothAdapter) Scan(fn func(Report)) error {
	return b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		fn(Report{
			Address: result.Address.String(),
			Name:    result.LocalName(),
			RSSI:    int(result.RSSI),
			Tuya:    result.HasServiceUUID(tuyaServiceUUID),
		})
	})
}

func (b *bluetoothAdapter) StopScan() error {
	return b.adapter.StopScan()
}
