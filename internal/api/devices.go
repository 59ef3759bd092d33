package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tuyable-bridge/internal/bridges/tuyable"
	"github.com/nerrad567/tuyable-bridge/internal/device"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// deviceView is a registered device with its live link state.
type deviceView struct {
	device.Device
	Managed   bool `json:"managed"`
	Connected bool `json:"connected"`
}

// entityView is a registered entity with its last state.
type entityView struct {
	device.Entity
	Available bool                `json:"available"`
	State     *device.EntityState `json:"state,omitempty"`
}

// handleListDevices returns all registered devices.
//
// Query parameters:
//   - health: filter by health status (online, offline, unknown)
//   - category: filter by Tuya category code
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	health := r.URL.Query().Get("health")
	if health != "" {
		if err := device.ValidateHealthStatus(device.HealthStatus(health)); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	category := r.URL.Query().Get("category")

	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	live := s.liveDevices()
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		if health != "" && string(d.HealthStatus) != health {
			continue
		}
		if category != "" && d.Category != category {
			continue
		}
		status, managed := live[d.ID]
		out = append(out, deviceView{Device: d, Managed: managed, Connected: status.Connected})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddressParam(w, r)
	if !ok {
		return
	}

	d, err := s.registry.GetDevice(r.Context(), address)
	if err != nil {
		s.writeRegistryError(w, err, address, "failed to get device")
		return
	}

	status, managed := s.liveDevices()[d.ID]
	writeJSON(w, http.StatusOK, deviceView{Device: *d, Managed: managed, Connected: status.Connected})
}

// handleListEntities returns a device's entities with their last known state.
// Availability comes from the bridge when it manages the device and from
// the stored state otherwise.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddressParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	entities, err := s.registry.ListEntities(ctx, address)
	if err != nil {
		s.writeRegistryError(w, err, address, "failed to list entities")
		return
	}

	available := make(map[string]bool)
	if s.bridge != nil {
		live, liveErr := s.bridge.Entities(address)
		if liveErr != nil && !errors.Is(liveErr, tuyable.ErrDeviceNotFound) {
			s.logger.Warn("failed to read live entities", "address", address, "error", liveErr)
		}
		for _, e := range live {
			available[e.EntityID] = e.Available
		}
	}

	out := make([]entityView, 0, len(entities))
	for _, e := range entities {
		view := entityView{Entity: e}
		st, stErr := s.registry.LastState(ctx, e.EntityID)
		switch {
		case stErr == nil:
			view.State = st
			view.Available = st.Available
		case !errors.Is(stErr, device.ErrStateNotFound):
			s.logger.Warn("failed to read entity state", "entity_id", e.EntityID, "error", stErr)
		}
		if live, ok := available[e.EntityID]; ok {
			view.Available = live
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"entities": out, "count": len(out)})
}

// handleDeviceStats returns registry counters.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleScannerDevices returns the Tuya devices heard over BLE.
func (s *Server) handleScannerDevices(w http.ResponseWriter, _ *http.Request) {
	if s.scanner == nil {
		writeUnavailable(w, "scanner")
		return
	}
	seen := s.scanner.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": seen, "count": len(seen)})
}

// liveDevices indexes the bridge's managed devices by address.
func (s *Server) liveDevices() map[string]tuyable.DeviceStatus {
	out := make(map[string]tuyable.DeviceStatus)
	if s.bridge == nil {
		return out
	}
	for _, d := range s.bridge.Devices() {
		out[d.Address] = d
	}
	return out
}

// parseAddressParam normalises the {id} URL parameter and writes a 400
// when it is not a BLE address.
func parseAddressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	address := devicemanager.NormalizeAddress(raw)
	if err := device.ValidateAddress(address); err != nil {
		writeInvalidAddress(w, raw)
		return "", false
	}
	return address, true
}
