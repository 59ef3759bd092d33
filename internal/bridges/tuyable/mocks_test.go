package tuyable

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/device"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/influxdb"
)

const (
	testAddress  = "DC:23:4D:11:22:33"
	testDeviceID = "bf1234"
)

func newTestProxy(category, productID string) *devicemanager.Proxy {
	p := devicemanager.NewProxy(testAddress)
	p.ApplyInfo(devicemanager.Info{
		DeviceID:        testDeviceID,
		Name:            "Test Device",
		Category:        category,
		ProductID:       productID,
		HardwareVersion: "1.0",
		DeviceVersion:   "2.1",
		ProtocolVersion: "3",
	})
	return p
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last(t *testing.T) *fakeTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("no timer armed")
	}
	return c.timers[len(c.timers)-1]
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fakeHost implements Host and records everything written to it.
type fakeHost struct {
	mu         sync.Mutex
	devices    []DeviceInfo
	registered []EntityRegistration
	states     []State
	events     []Event
	restore    map[string]RestoredState
}

func newFakeHost() *fakeHost {
	return &fakeHost{restore: map[string]RestoredState{}}
}

func (h *fakeHost) RegisterDevice(_ context.Context, _ devicemanager.Device, info DeviceInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = append(h.devices, info)
	return nil
}

func (h *fakeHost) RegisterEntity(_ context.Context, reg EntityRegistration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = append(h.registered, reg)
	return nil
}

func (h *fakeHost) WriteState(_ context.Context, st State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, st)
	return nil
}

func (h *fakeHost) Fire(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeHost) LastState(_ context.Context, entityID string) (RestoredState, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.restore[entityID]
	return st, ok, nil
}

func (h *fakeHost) getStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *fakeHost) getEvents() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// lastState returns the most recent state written for entityID.
func (h *fakeHost) lastState(t *testing.T, entityID string) State {
	t.Helper()
	states := h.getStates()
	for i := len(states) - 1; i >= 0; i-- {
		if states[i].EntityID == entityID {
			return states[i]
		}
	}
	t.Fatalf("no state written for %s", entityID)
	return State{}
}

// mockPublisher implements MQTTClient and HealthPublisher.
type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockPublisher(connected bool) *mockPublisher {
	return &mockPublisher{connected: connected}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{
		topic:    topic,
		payload:  payload,
		qos:      qos,
		retained: retained,
	})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]publishedMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

func (m *mockPublisher) onTopic(topic string) []publishedMessage {
	var out []publishedMessage
	for _, msg := range m.getMessages() {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	return v
}

// fakeSource implements DeviceSource.
type fakeSource struct {
	mu      sync.Mutex
	ready   []func(*devicemanager.Proxy)
	proxies map[string]*devicemanager.Proxy
}

func newFakeSource() *fakeSource {
	return &fakeSource{proxies: map[string]*devicemanager.Proxy{}}
}

func (s *fakeSource) OnDeviceReady(fn func(*devicemanager.Proxy)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, fn)
}

func (s *fakeSource) Lookup(address string) (*devicemanager.Proxy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proxies[devicemanager.NormalizeAddress(address)]
	return p, ok
}

func (s *fakeSource) makeReady(p *devicemanager.Proxy) {
	s.mu.Lock()
	s.proxies[p.Address()] = p
	fns := append([]func(*devicemanager.Proxy){}, s.ready...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// fakeRegistry implements Registry in memory.
type fakeRegistry struct {
	mu       sync.Mutex
	devices  map[string]device.Device
	entities map[string]device.Entity
	states   map[string]device.EntityState
	health   map[string]device.HealthStatus
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		devices:  map[string]device.Device{},
		entities: map[string]device.Entity{},
		states:   map[string]device.EntityState{},
		health:   map[string]device.HealthStatus{},
	}
}

func (r *fakeRegistry) RegisterDevice(_ context.Context, dev *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[dev.ID] = *dev
	return nil
}

func (r *fakeRegistry) RegisterEntity(_ context.Context, e *device.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.EntityID] = *e
	return nil
}

func (r *fakeRegistry) UpdateEntityState(_ context.Context, entityID string, st device.EntityState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[entityID] = st
	return nil
}

func (r *fakeRegistry) LastState(_ context.Context, entityID string) (*device.EntityState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[entityID]
	if !ok {
		return nil, device.ErrStateNotFound
	}
	return &st, nil
}

func (r *fakeRegistry) UpdateHealth(_ context.Context, id string, status device.HealthStatus, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[id] = status
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []device.StateHistoryEntry
}

func (h *fakeHistory) RecordStateChange(_ context.Context, e device.StateHistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *fakeHistory) count(entityID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.entries {
		if e.EntityID == entityID {
			n++
		}
	}
	return n
}

type fakeTelemetry struct {
	mu       sync.Mutex
	readings []influxdb.SensorReading
	adverts  []string
}

func (f *fakeTelemetry) WriteSensorReading(r influxdb.SensorReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
}

func (f *fakeTelemetry) WriteAdvertisement(address, _ string, _ int, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adverts = append(f.adverts, address)
}

type fakeCredentials struct {
	creds map[string]*devicemanager.Credentials
	err   error
}

func (f *fakeCredentials) DeviceCredentials(_ context.Context, address string, _ bool) (*devicemanager.Credentials, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.creds[address]
	if !ok {
		return nil, devicemanager.ErrCredentialsNotFound
	}
	return c, nil
}
