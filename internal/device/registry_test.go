package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu       sync.Mutex
	devices  map[string]*Device
	entities map[string]*Entity
	states   map[string]*EntityState

	// For testing error paths
	upsertErr  error
	stateErr   error
	stateReads int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices:  make(map[string]*Device),
		entities: make(map[string]*Entity),
		states:   make(map[string]*EntityState),
	}
}

func (m *MockRepository) GetDevice(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) ListDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *MockRepository) UpsertDevice(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) UpdateHealth(_ context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.HealthStatus = status
	d.LastSeen = &lastSeen
	return nil
}

func (m *MockRepository) ListEntities(_ context.Context) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entities := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		entities = append(entities, *e)
	}
	return entities, nil
}

func (m *MockRepository) UpsertEntity(_ context.Context, e *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *e
	m.entities[e.UniqueID] = &cp
	return nil
}

func (m *MockRepository) GetEntityState(_ context.Context, entityID string) (*EntityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateReads++
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	st, ok := m.states[entityID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.DeepCopy(), nil
}

func (m *MockRepository) UpsertEntityState(_ context.Context, st *EntityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return m.stateErr
	}
	m.states[st.EntityID] = st.DeepCopy()
	return nil
}

const addr = "DC:23:4D:11:22:33"

func TestRegistry_RegisterAndGetDevice(t *testing.T) {
	repo := NewMockRepository()
	r := NewRegistry(repo)
	ctx := context.Background()

	d := testDevice(addr, "Fingerbot")
	if err := r.RegisterDevice(ctx, d); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	got, err := r.GetDevice(ctx, addr)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	got.Name = "mutated"

	again, _ := r.GetDevice(ctx, addr)
	if again.Name != "Fingerbot" {
		t.Error("GetDevice() returned a shared pointer into the cache")
	}

	// Re-registering keeps the original creation time.
	created := again.CreatedAt
	if err := r.RegisterDevice(ctx, testDevice(addr, "Fingerbot 2")); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	again, _ = r.GetDevice(ctx, addr)
	if again.Name != "Fingerbot 2" || !again.CreatedAt.Equal(created) {
		t.Errorf("device = %+v, created %v", again, created)
	}
}

func TestRegistry_RegisterDeviceValidation(t *testing.T) {
	r := NewRegistry(NewMockRepository())
	d := testDevice("dc:23", "Fingerbot")
	if err := r.RegisterDevice(context.Background(), d); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("RegisterDevice() error = %v, want ErrInvalidAddress", err)
	}
}

func TestRegistry_RegisterDeviceRepositoryError(t *testing.T) {
	repo := NewMockRepository()
	repo.upsertErr = errors.New("disk full")
	r := NewRegistry(repo)

	if err := r.RegisterDevice(context.Background(), testDevice(addr, "Fingerbot")); err == nil {
		t.Fatal("RegisterDevice() should fail")
	}
	if _, err := r.GetDevice(context.Background(), addr); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("failed registration was cached: %v", err)
	}
}

func TestRegistry_GetDeviceFallsBackToRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.devices[addr] = testDevice(addr, "Stored")
	r := NewRegistry(repo)

	got, err := r.GetDevice(context.Background(), addr)
	if err != nil || got.Name != "Stored" {
		t.Fatalf("GetDevice() = %v, %v", got, err)
	}
	if n := len(mustList(t, r)); n != 1 {
		t.Errorf("device not cached after repository read: %d", n)
	}
}

func mustList(t *testing.T, r *Registry) []Device {
	t.Helper()
	devices, err := r.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	return devices
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["BB:00:00:00:00:02"] = testDevice("BB:00:00:00:00:02", "B")
	repo.devices["AA:00:00:00:00:01"] = testDevice("AA:00:00:00:00:01", "A")
	e := testEntity("AA:00:00:00:00:01", "bf1", "battery")
	repo.entities[e.UniqueID] = e

	r := NewRegistry(repo)
	if err := r.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	devices := mustList(t, r)
	if len(devices) != 2 || devices[0].ID != "AA:00:00:00:00:01" {
		t.Errorf("ListDevices() = %+v, want sorted by address", devices)
	}
	if _, err := r.GetEntity(context.Background(), "sensor.bf1_battery"); err != nil {
		t.Errorf("GetEntity() error = %v", err)
	}

	stats := r.GetStats()
	if stats.TotalDevices != 2 || stats.TotalEntities != 1 || stats.ByCategory["szjqr"] != 2 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestRegistry_Entities(t *testing.T) {
	r := NewRegistry(NewMockRepository())
	ctx := context.Background()

	if err := r.RegisterDevice(ctx, testDevice(addr, "Sensor")); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	for _, key := range []string{"temperature", "battery"} {
		if err := r.RegisterEntity(ctx, testEntity(addr, "bf1234", key)); err != nil {
			t.Fatalf("RegisterEntity(%s) error = %v", key, err)
		}
	}

	entities, err := r.ListEntities(ctx, addr)
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if len(entities) != 2 || entities[0].Key != "battery" || entities[1].Key != "temperature" {
		t.Errorf("ListEntities() = %+v", entities)
	}

	if _, err := r.ListEntities(ctx, "AA:AA:AA:AA:AA:AA"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ListEntities(unknown) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := r.GetEntity(ctx, "sensor.nope"); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("GetEntity(unknown) error = %v, want ErrEntityNotFound", err)
	}
	if err := r.RegisterEntity(ctx, testEntity(addr, "bf1234", "Bad Key")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("RegisterEntity(bad key) error = %v, want ErrInvalidKey", err)
	}
}

func TestRegistry_EntityState(t *testing.T) {
	repo := NewMockRepository()
	r := NewRegistry(repo)
	ctx := context.Background()
	const entityID = "sensor.bf1234_battery"

	if _, err := r.LastState(ctx, entityID); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("LastState() error = %v, want ErrStateNotFound", err)
	}

	st := EntityState{Value: int64(80), Unit: "%", Attributes: map[string]any{"a": 1}, Available: true}
	if err := r.UpdateEntityState(ctx, entityID, st); err != nil {
		t.Fatalf("UpdateEntityState() error = %v", err)
	}

	reads := repo.stateReads
	got, err := r.LastState(ctx, entityID)
	if err != nil {
		t.Fatalf("LastState() error = %v", err)
	}
	if got.EntityID != entityID || got.Value != int64(80) || got.UpdatedAt.IsZero() {
		t.Errorf("LastState() = %+v", got)
	}
	if repo.stateReads != reads {
		t.Error("LastState() hit the repository after a write")
	}

	got.Attributes["a"] = 2
	again, _ := r.LastState(ctx, entityID)
	if again.Attributes["a"] != 1 {
		t.Error("LastState() returned shared attributes")
	}
}

func TestRegistry_LastStateLoadsFromRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.states["sensor.x_battery"] = &EntityState{EntityID: "sensor.x_battery", Value: 55.0}
	r := NewRegistry(repo)

	for range 2 {
		got, err := r.LastState(context.Background(), "sensor.x_battery")
		if err != nil || got.Value != 55.0 {
			t.Fatalf("LastState() = %+v, %v", got, err)
		}
	}
	if repo.stateReads != 1 {
		t.Errorf("repository reads = %d, want 1", repo.stateReads)
	}

	repo.stateErr = errors.New("locked")
	if _, err := r.LastState(context.Background(), "sensor.other"); err == nil || errors.Is(err, ErrStateNotFound) {
		t.Errorf("LastState() error = %v, want wrapped repository error", err)
	}
}

func TestRegistry_UpdateHealth(t *testing.T) {
	r := NewRegistry(NewMockRepository())
	ctx := context.Background()
	if err := r.RegisterDevice(ctx, testDevice(addr, "Fingerbot")); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	seen := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := r.UpdateHealth(ctx, addr, HealthStatusOffline, seen); err != nil {
		t.Fatalf("UpdateHealth() error = %v", err)
	}
	d, _ := r.GetDevice(ctx, addr)
	if d.HealthStatus != HealthStatusOffline || d.LastSeen == nil || !d.LastSeen.Equal(seen) {
		t.Errorf("device = %+v", d)
	}

	if err := r.UpdateHealth(ctx, addr, "bad", seen); !errors.Is(err, ErrInvalidHealthStatus) {
		t.Errorf("UpdateHealth(bad) error = %v, want ErrInvalidHealthStatus", err)
	}
	if err := r.UpdateHealth(ctx, "AA:AA:AA:AA:AA:AA", HealthStatusOnline, seen); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateHealth(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(NewMockRepository())
	ctx := context.Background()
	if err := r.RegisterDevice(ctx, testDevice(addr, "Fingerbot")); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.UpdateEntityState(ctx, "sensor.bf1234_battery", EntityState{Value: int64(i)})
		}()
		go func() {
			defer wg.Done()
			_, _ = r.LastState(ctx, "sensor.bf1234_battery")
			_, _ = r.GetDevice(ctx, addr)
			_ = r.GetStats()
		}()
	}
	wg.Wait()
}
