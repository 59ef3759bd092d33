package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleEntityHistory returns recorded state changes for an entity, newest first.
//
// Query parameters:
//   - limit: number of entries (default 50, max 500)
//   - since: RFC3339 timestamp; older entries are dropped
func (s *Server) handleEntityHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history")
		return
	}

	entityID := chi.URLParam(r, "entity_id")
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since: must be RFC3339")
		return
	}

	ctx := r.Context()
	if _, err := s.registry.GetEntity(ctx, entityID); err != nil {
		s.writeRegistryError(w, err, entityID, "failed to get entity")
		return
	}

	entries, err := s.history.GetHistory(ctx, entityID, limit)
	if err != nil {
		s.logger.Error("failed to get state history", "entity_id", entityID, "error", err)
		writeInternalError(w, "failed to get state history")
		return
	}

	if !since.IsZero() {
		kept := entries[:0]
		for _, e := range entries {
			if !e.CreatedAt.Before(since) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit validates the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339/RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
