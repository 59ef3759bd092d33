package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/tuyable-bridge/internal/bridges/tuyable"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// ManagerView lists every device the external device manager has
// reported, ready or not. This interface is satisfied by
// *devicemanager.Manager.
type ManagerView interface {
	Proxies() []*devicemanager.Proxy
}

// managerDeviceView is the device manager's raw view of one device.
type managerDeviceView struct {
	Address string `json:"address"`
	devicemanager.Info
	Connected bool `json:"connected"`
	RSSI      *int `json:"rssi,omitempty"`
	Supported bool `json:"supported"`
}

// handleManagerDevices returns what the device manager reported, including
// devices the bridge has not set up because identity is still missing or
// the product is not in the catalog.
//
// Query parameters:
//   - connected: filter by link state (true or false)
func (s *Server) handleManagerDevices(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		writeUnavailable(w, "device manager")
		return
	}

	var filter *bool
	if raw := r.URL.Query().Get("connected"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "invalid connected: must be true or false")
			return
		}
		filter = &v
	}

	proxies := s.manager.Proxies()
	out := make([]managerDeviceView, 0, len(proxies))
	for _, p := range proxies {
		view := managerDeviceView{
			Address:   p.Address(),
			Info:      p.Info(),
			Connected: p.Connected(),
		}
		if filter != nil && view.Connected != *filter {
			continue
		}
		if rssi, ok := p.RSSI(); ok {
			view.RSSI = &rssi
		}
		_, view.Supported = tuyable.ProductFor(p)
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}
