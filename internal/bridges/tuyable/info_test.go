package tuyable

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

func TestShortAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"aa-bb-cc-dd-ee-ff", "DDEEFF"},
		{"DC:23:4D:11:22:33", "112233"},
		{"dc:23:4d:11:22:33", "112233"},
		{"11:22", "1122"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			if got := ShortAddress(tt.address); got != tt.want {
				t.Errorf("ShortAddress(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

func TestBuildDeviceInfo_CatalogProduct(t *testing.T) {
	p := newTestProxy("szjqr", "3yqdo5yt")
	p.ApplyInfo(devicemanager.Info{ProductModel: "CT-1S"})

	info := BuildDeviceInfo(p)

	if info.Name != "CUBETOUCH 1s 112233" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.Model != "CT-1S (3yqdo5yt)" {
		t.Errorf("Model = %q", info.Model)
	}
	if info.Manufacturer != "Tuya" {
		t.Errorf("Manufacturer = %q", info.Manufacturer)
	}
	if info.SWVersion != "2.1 (protocol 3)" {
		t.Errorf("SWVersion = %q", info.SWVersion)
	}
	if info.HWVersion != "1.0" {
		t.Errorf("HWVersion = %q", info.HWVersion)
	}
	if len(info.Connections) != 1 || info.Connections[0] != [2]string{ConnectionBluetooth, testAddress} {
		t.Errorf("Connections = %v", info.Connections)
	}
	if len(info.Identifiers) != 1 || info.Identifiers[0] != [2]string{Domain, testAddress} {
		t.Errorf("Identifiers = %v", info.Identifiers)
	}
}

func TestBuildDeviceInfo_UnknownProduct(t *testing.T) {
	p := newTestProxy("xxxx", "nope")

	info := BuildDeviceInfo(p)

	if info.Name != "Test Device 112233" {
		t.Errorf("Name = %q, want device name fallback", info.Name)
	}
	if info.Model != "Test Device (nope)" {
		t.Errorf("Model = %q, want product name fallback", info.Model)
	}
	if info.Manufacturer != "Tuya" {
		t.Errorf("Manufacturer = %q", info.Manufacturer)
	}
}

func TestProductFor_RequiresBothIDs(t *testing.T) {
	p := devicemanager.NewProxy(testAddress)
	p.ApplyInfo(devicemanager.Info{Category: "szjqr"})
	if _, ok := ProductFor(p); ok {
		t.Error("ProductFor() found a product without a product id")
	}

	p.ApplyInfo(devicemanager.Info{ProductID: "3yqdo5yt"})
	if _, ok := ProductFor(p); !ok {
		t.Error("ProductFor() = not found, want CUBETOUCH 1s")
	}
}

func TestReadableName(t *testing.T) {
	provider := &fakeCredentials{creds: map[string]*devicemanager.Credentials{
		"AA:BB:CC:DD:EE:01": {Category: "szjqr", ProductID: "xhf790if", DeviceName: "Kitchen bot"},
		"AA:BB:CC:DD:EE:02": {Category: "zz", ProductID: "unknown", DeviceName: "Garden sensor"},
	}}

	tests := []struct {
		name      string
		discovery Discovery
		provider  devicemanager.CredentialsProvider
		want      string
	}{
		{"catalog product", Discovery{Address: "AA:BB:CC:DD:EE:01", Name: "TY"}, provider, "CubeTouch II DDEE01"},
		{"credentials name", Discovery{Address: "AA:BB:CC:DD:EE:02", Name: "TY"}, provider, "Garden sensor DDEE02"},
		{"unknown device", Discovery{Address: "AA:BB:CC:DD:EE:03", Name: "TY"}, provider, "TY DDEE03"},
		{"nil provider", Discovery{Address: "AA:BB:CC:DD:EE:01", Name: "TY"}, nil, "TY DDEE01"},
		{"provider error", Discovery{Address: "AA:BB:CC:DD:EE:01", Name: "TY"}, &fakeCredentials{err: errors.New("db closed")}, "TY DDEE01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadableName(context.Background(), tt.discovery, tt.provider); got != tt.want {
				t.Errorf("ReadableName() = %q, want %q", got, tt.want)
			}
		})
	}
}
