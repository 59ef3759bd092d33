package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceDevice  = "device"
	StateHistorySourceRestore = "restore"
)

// StateHistoryEntry is one recorded change of an entity's value.
type StateHistoryEntry struct {
	ID         int64          `json:"id"`
	EntityID   string         `json:"entity_id"`
	DeviceID   string         `json:"device_id"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
}

// StateHistoryRepository stores and retrieves entity state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange appends an entry. A zero CreatedAt means now.
	RecordStateChange(ctx context.Context, entry StateHistoryEntry) error

	// GetHistory returns the most recent entries for the entity,
	// newest first. limit is clamped to a sane range.
	GetHistory(ctx context.Context, entityID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns how
	// many were removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
