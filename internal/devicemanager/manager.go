package devicemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/mqtt"
)

const (
	defaultQoS    = 1
	recordTimeout = 5 * time.Second
)

var addressPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// ValidAddress reports whether address is a normalised BLE MAC address.
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// Subscriber is the part of the MQTT client the manager needs.
type Subscriber interface {
	SubscribeManager(kind string, qos byte, handler mqtt.ManagerHandler) error
}

// InfoRecorder persists identity reported by the device manager.
type InfoRecorder interface {
	RecordInfo(ctx context.Context, address string, info Info) error
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Subscriber Subscriber
	Topics     mqtt.Topics

	// Recorder, when set, receives every accepted info message.
	Recorder InfoRecorder

	Logger Logger
	QoS    byte
}

// Manager tracks the devices reported by the external device manager over
// MQTT and exposes each as a Proxy.
type Manager struct {
	sub      Subscriber
	topics   mqtt.Topics
	recorder InfoRecorder
	logger   Logger
	qos      byte
	schemas  *validator

	mu      sync.Mutex
	proxies map[string]*Proxy
	ready   map[string]bool
	onReady []func(*Proxy)
}

// NewManager compiles the payload schemas and returns an idle manager.
// Call Start to subscribe.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	schemas, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("loading payload schemas: %w", err)
	}

	m := &Manager{
		sub:      cfg.Subscriber,
		topics:   cfg.Topics,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		qos:      cfg.QoS,
		schemas:  schemas,
		proxies:  make(map[string]*Proxy),
		ready:    make(map[string]bool),
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.qos == 0 {
		m.qos = defaultQoS
	}
	return m, nil
}

// Start subscribes to the info, status and datapoint topics.
func (m *Manager) Start() error {
	if m.sub == nil {
		return fmt.Errorf("devicemanager: no subscriber configured")
	}

	subs := []struct {
		kind    string
		handler mqtt.ManagerHandler
	}{
		{mqtt.KindInfo, m.handleInfo},
		{mqtt.KindStatus, m.handleStatus},
		{mqtt.KindDatapoints, m.handleDatapoints},
	}
	for _, s := range subs {
		if err := m.sub.SubscribeManager(s.kind, m.qos, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", m.topics.AllManager(s.kind), err)
		}
	}

	m.logger.Info("device manager subscriptions active", "prefix", m.topics.Prefix)
	return nil
}

// OnDeviceReady registers fn to run once per device, the first time the
// device reports both a category and a product id. Devices that are
// already ready are passed to fn immediately.
func (m *Manager) OnDeviceReady(fn func(*Proxy)) {
	m.mu.Lock()
	m.onReady = append(m.onReady, fn)
	var already []*Proxy
	for address := range m.ready {
		already = append(already, m.proxies[address])
	}
	m.mu.Unlock()

	sort.Slice(already, func(i, j int) bool { return already[i].Address() < already[j].Address() })
	for _, p := range already {
		fn(p)
	}
}

// Proxy returns the proxy for address, creating it when unknown.
func (m *Manager) Proxy(address string) *Proxy {
	address = NormalizeAddress(address)

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proxies[address]
	if !ok {
		p = NewProxy(address)
		m.proxies[address] = p
	}
	return p
}

// Lookup returns the proxy for address if the manager has heard of it.
func (m *Manager) Lookup(address string) (*Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[NormalizeAddress(address)]
	return p, ok
}

// Proxies returns every known proxy ordered by address.
func (m *Manager) Proxies() []*Proxy {
	m.mu.Lock()
	out := make([]*Proxy, 0, len(m.proxies))
	for _, p := range m.proxies {
		out = append(out, p)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

func (m *Manager) proxyForAddress(address string) (*Proxy, error) {
	address = NormalizeAddress(address)
	if !ValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return m.Proxy(address), nil
}

func (m *Manager) handleInfo(address string, payload []byte) error {
	p, err := m.proxyForAddress(address)
	if err != nil {
		return err
	}
	if err := validate(m.schemas.info, payload); err != nil {
		return fmt.Errorf("info for %s: %w", p.Address(), err)
	}

	var info Info
	if err := json.Unmarshal(payload, &info); err != nil {
		return fmt.Errorf("%w: info for %s: %w", ErrInvalidPayload, p.Address(), err)
	}

	p.ApplyInfo(info)
	m.logger.Debug("device info received", "address", p.Address(), "category", info.Category, "product_id", info.ProductID)

	if m.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.recorder.RecordInfo(ctx, p.Address(), p.Info()); err != nil {
			m.logger.Warn("recording device info failed", "address", p.Address(), "error", err)
		}
	}

	m.checkReady(p)
	return nil
}

func (m *Manager) handleStatus(address string, payload []byte) error {
	p, err := m.proxyForAddress(address)
	if err != nil {
		return err
	}
	if err := validate(m.schemas.status, payload); err != nil {
		return fmt.Errorf("status for %s: %w", p.Address(), err)
	}

	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: status for %s: %w", ErrInvalidPayload, p.Address(), err)
	}

	m.logger.Debug("device status received", "address", p.Address(), "connected", msg.Connected)
	p.SetConnected(msg.Connected)
	if msg.RSSI != nil {
		p.UpdateRSSI(*msg.RSSI)
	}
	return nil
}

func (m *Manager) handleDatapoints(address string, payload []byte) error {
	p, err := m.proxyForAddress(address)
	if err != nil {
		return err
	}
	if err := validate(m.schemas.datapoints, payload); err != nil {
		return fmt.Errorf("datapoints for %s: %w", p.Address(), err)
	}

	var msg datapointsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: datapoints for %s: %w", ErrInvalidPayload, p.Address(), err)
	}

	updates := make([]Datapoint, 0, len(msg.Datapoints))
	for _, w := range msg.Datapoints {
		dp, err := w.decode()
		if err != nil {
			return fmt.Errorf("datapoints for %s: %w", p.Address(), err)
		}
		updates = append(updates, dp)
	}

	m.logger.Debug("datapoints received", "address", p.Address(), "count", len(updates))
	p.ApplyDatapoints(updates)
	return nil
}

// checkReady fires the ready callbacks the first time p has a category and product id.
func (m *Manager) checkReady(p *Proxy) {
	if p.Category() == "" || p.ProductID() == "" {
		return
	}

	m.mu.Lock()
	if m.ready[p.Address()] {
		m.mu.Unlock()
		return
	}
	m.ready[p.Address()] = true
	callbacks := append([]func(*Proxy){}, m.onReady...)
	m.mu.Unlock()

	m.logger.Info("device ready", "address", p.Address(), "category", p.Category(), "product_id", p.ProductID())
	for _, fn := range callbacks {
		fn(p)
	}
}
