package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device and entity bookkeeping with caching and
// thread safety. It wraps a Repository and adds an in-memory cache.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// the write operations. Entity states are cached as they are read or
// written.
//
// All public methods are thread-safe.
type Registry struct {
	repo Repository

	cacheMu  sync.RWMutex
	devices  map[string]*Device      // by address
	entities map[string]*Entity      // by entity id
	states   map[string]*EntityState // by entity id

	logger Logger
}

// NewRegistry creates a new registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		devices:  make(map[string]*Device),
		entities: make(map[string]*Entity),
		states:   make(map[string]*EntityState),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads devices and entities from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	entities, err := r.repo.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		r.devices[devices[i].ID] = devices[i].DeepCopy()
	}
	r.entities = make(map[string]*Entity, len(entities))
	for i := range entities {
		e := entities[i]
		r.entities[e.EntityID] = &e
	}
	r.states = make(map[string]*EntityState)

	r.logger.Info("registry cache refreshed", "devices", len(devices), "entities", len(entities))
	return nil
}

// RegisterDevice creates or updates a device. The creation time of an
// already registered device is kept.
func (r *Registry) RegisterDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}

	r.cacheMu.RLock()
	if existing, ok := r.devices[d.ID]; ok && d.CreatedAt.IsZero() {
		d.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpsertDevice(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.devices[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", d.ID, "name", d.Name)
	return nil
}

// RegisterEntity creates or updates an entity.
func (r *Registry) RegisterEntity(ctx context.Context, e *Entity) error {
	if err := ValidateEntity(e); err != nil {
		return err
	}

	r.cacheMu.RLock()
	if existing, ok := r.entities[e.EntityID]; ok && e.CreatedAt.IsZero() {
		e.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpsertEntity(ctx, e); err != nil {
		return err
	}

	cp := *e
	r.cacheMu.Lock()
	r.entities[e.EntityID] = &cp
	r.cacheMu.Unlock()

	r.logger.Debug("entity registered", "entity_id", e.EntityID, "device_id", e.DeviceID)
	return nil
}

// GetDevice retrieves a device by address.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.devices[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.devices[id] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// ListDevices returns all cached devices ordered by address.
func (r *Registry) ListDevices(_ context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// ListEntities returns the entities of a device ordered by entity id.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) ListEntities(ctx context.Context, deviceID string) ([]Entity, error) {
	if _, err := r.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	var entities []Entity
	for _, e := range r.entities {
		if e.DeviceID == deviceID {
			entities = append(entities, *e)
		}
	}
	r.cacheMu.RUnlock()

	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })
	return entities, nil
}

// GetEntity retrieves an entity by entity id.
// Returns ErrEntityNotFound if the entity does not exist.
func (r *Registry) GetEntity(_ context.Context, entityID string) (*Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	e, ok := r.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	cp := *e
	return &cp, nil
}

// UpdateEntityState persists the state of an entity.
// This is on the hot path for every sensor update.
func (r *Registry) UpdateEntityState(ctx context.Context, entityID string, state EntityState) error {
	state.EntityID = entityID
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	if err := r.repo.UpsertEntityState(ctx, &state); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.states[entityID] = state.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Debug("entity state updated", "entity_id", entityID)
	return nil
}

// LastState returns the last persisted state of an entity.
// Returns ErrStateNotFound if nothing was written yet.
func (r *Registry) LastState(ctx context.Context, entityID string) (*EntityState, error) {
	r.cacheMu.RLock()
	cached, ok := r.states[entityID]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	st, err := r.repo.GetEntityState(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading state of %s: %w", entityID, err)
	}

	r.cacheMu.Lock()
	r.states[entityID] = st.DeepCopy()
	r.cacheMu.Unlock()
	return st, nil
}

// UpdateHealth updates the health status of a device.
func (r *Registry) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	if err := ValidateHealthStatus(status); err != nil {
		return err
	}
	if err := r.repo.UpdateHealth(ctx, id, status, lastSeen); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.devices[id]; ok {
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		seen := lastSeen.UTC()
		updated.LastSeen = &seen
		r.devices[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device health updated", "id", id, "status", status)
	return nil
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int                  `json:"total_devices"`
	TotalEntities  int                  `json:"total_entities"`
	ByCategory     map[string]int       `json:"by_category"`
	ByHealthStatus map[HealthStatus]int `json:"by_health_status"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices:   len(r.devices),
		TotalEntities:  len(r.entities),
		ByCategory:     make(map[string]int),
		ByHealthStatus: make(map[HealthStatus]int),
	}
	for _, d := range r.devices {
		stats.ByCategory[d.Category]++
		stats.ByHealthStatus[d.HealthStatus]++
	}
	return stats
}
