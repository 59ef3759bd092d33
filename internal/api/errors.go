package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/tuyable-bridge/internal/device"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients switch on these, never on Message.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeInvalidAddress  = "invalid_address"
	ErrCodeNotFound        = "not_found"
	ErrCodeDeviceNotFound  = "device_not_found"
	ErrCodeEntityNotFound  = "entity_not_found"
	ErrCodeUnknownCategory = "unknown_category"
	ErrCodeInternal        = "internal_error"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeMethodNotAllow  = "method_not_allowed"

	ErrCodeOriginNotAllowed = "origin_not_allowed"
)

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeInvalidAddress(w http.ResponseWriter, raw string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidAddress,
		fmt.Sprintf("%q is not a BLE address (expected AA:BB:CC:DD:EE:FF)", raw))
}

func writeUnknownCategory(w http.ResponseWriter, category string) {
	writeError(w, http.StatusNotFound, ErrCodeUnknownCategory,
		fmt.Sprintf("category %q is not in the catalog", category))
}

// writeUnavailable reports a component that is disabled in configuration.
func writeUnavailable(w http.ResponseWriter, component string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, component+" is disabled")
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRegistryError maps a registry lookup failure for id to a response.
// Lookup misses become 404s with a specific code; anything else is logged
// and reported as a 500 with action as the message.
func (s *Server) writeRegistryError(w http.ResponseWriter, err error, id, action string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeDeviceNotFound, fmt.Sprintf("device %s not found", id))
	case errors.Is(err, device.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, ErrCodeEntityNotFound, fmt.Sprintf("entity %s not found", id))
	default:
		s.logger.Error(action, "id", id, "error", err)
		writeInternalError(w, action)
	}
}
