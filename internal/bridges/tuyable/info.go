package tuyable

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/tuyable-bridge/internal/catalog"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// Identifier namespaces used in DeviceInfo.
const (
	// Domain identifies devices owned by this bridge.
	Domain = "tuya_ble"

	// ConnectionBluetooth marks a connection keyed by BLE address.
	ConnectionBluetooth = "bluetooth"
)

const shortAddressLen = 6

// DeviceInfo is the identity the bridge registers for a device.
type DeviceInfo struct {
	Connections  [][2]string `json:"connections"`
	Identifiers  [][2]string `json:"identifiers"`
	HWVersion    string      `json:"hw_version"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	Name         string      `json:"name"`
	SWVersion    string      `json:"sw_version"`
}

// Discovery is a device seen over the air before the device manager
// reported it.
type Discovery struct {
	Address string
	Name    string
}

// ShortAddress returns the last three octets of a BLE address without
// separators, e.g. "aa-bb-cc-dd-ee-ff" → "DDEEFF".
func ShortAddress(address string) string {
	parts := strings.Split(strings.ToUpper(strings.ReplaceAll(address, "-", ":")), ":")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	short := strings.Join(parts, "")
	if len(short) > shortAddressLen {
		short = short[len(short)-shortAddressLen:]
	}
	return short
}

// ProductFor looks up the catalog entry for a device. Devices that have
// not reported both a category and a product id have none.
func ProductFor(device devicemanager.Device) (catalog.ProductInfo, bool) {
	if device.Category() == "" || device.ProductID() == "" {
		return catalog.ProductInfo{}, false
	}
	return catalog.LookupProduct(device.Category(), device.ProductID())
}

// BuildDeviceInfo derives the registry identity of a device.
func BuildDeviceInfo(device devicemanager.Device) DeviceInfo {
	productName := device.Name()
	manufacturer := catalog.DefaultManufacturer
	if product, ok := ProductFor(device); ok {
		productName = product.Name
		if product.Manufacturer != "" {
			manufacturer = product.Manufacturer
		}
	}

	model := device.ProductModel()
	if model == "" {
		model = productName
	}

	return DeviceInfo{
		Connections:  [][2]string{{ConnectionBluetooth, device.Address()}},
		Identifiers:  [][2]string{{Domain, device.Address()}},
		HWVersion:    device.HardwareVersion(),
		Manufacturer: manufacturer,
		Model:        fmt.Sprintf("%s (%s)", model, device.ProductID()),
		Name:         fmt.Sprintf("%s %s", productName, ShortAddress(device.Address())),
		SWVersion:    fmt.Sprintf("%s (protocol %s)", device.DeviceVersion(), device.ProtocolVersion()),
	}
}

// ReadableName names a discovered device for display. It prefers the
// catalog product name, then the device name from its credentials, then
// the advertised name. A nil provider or a failed lookup falls through
// to the advertised name.
func ReadableName(ctx context.Context, discovery Discovery, provider devicemanager.CredentialsProvider) string {
	short := ShortAddress(discovery.Address)

	if provider != nil {
		creds, err := provider.DeviceCredentials(ctx, discovery.Address, false)
		if err == nil && creds != nil {
			if product, ok := catalog.LookupProduct(creds.Category, creds.ProductID); ok {
				return fmt.Sprintf("%s %s", product.Name, short)
			}
			return fmt.Sprintf("%s %s", creds.DeviceName, short)
		}
	}
	return fmt.Sprintf("%s %s", discovery.Name, short)
}
