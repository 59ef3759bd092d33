package devicemanager

import (
	"maps"
	"strings"
	"sync"
)

// NormalizeAddress upper-cases a BLE address and uses ":" as separator.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(address), "-", ":"))
}

// Info is the identity the device manager reports for a device.
type Info struct {
	DeviceID        string `json:"device_id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	ProductID       string `json:"product_id"`
	ProductModel    string `json:"product_model"`
	ProductName     string `json:"product_name"`
	HardwareVersion string `json:"hardware_version"`
	DeviceVersion   string `json:"device_version"`
	ProtocolVersion string `json:"protocol_version"`
}

type callbackList[F any] struct {
	next    int
	entries []callbackEntry[F]
}

type callbackEntry[F any] struct {
	id int
	fn F
}

func (l *callbackList[F]) add(fn F) int {
	l.next++
	l.entries = append(l.entries, callbackEntry[F]{id: l.next, fn: fn})
	return l.next
}

func (l *callbackList[F]) remove(id int) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *callbackList[F]) snapshot() []F {
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}

// Proxy is the bridge-side mirror of a device held by the external device
// manager. It implements Device.
//
// State is guarded by a RWMutex; callbacks are invoked after the lock is
// released so they may call back into the proxy.
type Proxy struct {
	address string

	mu         sync.RWMutex
	info       Info
	rssi       int
	hasRSSI    bool
	connected  bool
	datapoints Table

	updated      callbackList[func([]Datapoint)]
	onConnect    callbackList[func()]
	onDisconnect callbackList[func()]
	onRSSI       callbackList[func()]
}

// NewProxy returns an empty, disconnected proxy for address.
func NewProxy(address string) *Proxy {
	return &Proxy{
		address:    NormalizeAddress(address),
		datapoints: make(Table),
	}
}

func (p *Proxy) Address() string { return p.address }

func (p *Proxy) DeviceID() string     { return p.field(func(i Info) string { return i.DeviceID }) }
func (p *Proxy) Name() string         { return p.field(func(i Info) string { return i.Name }) }
func (p *Proxy) Category() string     { return p.field(func(i Info) string { return i.Category }) }
func (p *Proxy) ProductID() string    { return p.field(func(i Info) string { return i.ProductID }) }
func (p *Proxy) ProductModel() string { return p.field(func(i Info) string { return i.ProductModel }) }
func (p *Proxy) ProductName() string  { return p.field(func(i Info) string { return i.ProductName }) }
func (p *Proxy) HardwareVersion() string {
	return p.field(func(i Info) string { return i.HardwareVersion })
}
func (p *Proxy) DeviceVersion() string {
	return p.field(func(i Info) string { return i.DeviceVersion })
}
func (p *Proxy) ProtocolVersion() string {
	return p.field(func(i Info) string { return i.ProtocolVersion })
}

func (p *Proxy) field(get func(Info) string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return get(p.info)
}

// Info returns a copy of the reported identity.
func (p *Proxy) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// RSSI implements Device.
func (p *Proxy) RSSI() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rssi, p.hasRSSI
}

// Connected reports the last status received from the device manager.
func (p *Proxy) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Datapoints returns a snapshot of the datapoint table. The table is
// replaced, never modified, on update.
func (p *Proxy) Datapoints() Datapoints {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.datapoints
}

// RegisterCallback implements Device.
func (p *Proxy) RegisterCallback(fn func([]Datapoint)) func() {
	p.mu.Lock()
	id := p.updated.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.updated.remove(id)
		p.mu.Unlock()
	}
}

// RegisterConnectedCallback implements Device.
func (p *Proxy) RegisterConnectedCallback(fn func()) func() {
	p.mu.Lock()
	id := p.onConnect.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.onConnect.remove(id)
		p.mu.Unlock()
	}
}

// RegisterDisconnectedCallback implements Device.
func (p *Proxy) RegisterDisconnectedCallback(fn func()) func() {
	p.mu.Lock()
	id := p.onDisconnect.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.onDisconnect.remove(id)
		p.mu.Unlock()
	}
}

// RegisterRSSICallback implements Device.
func (p *Proxy) RegisterRSSICallback(fn func()) func() {
	p.mu.Lock()
	id := p.onRSSI.add(fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.onRSSI.remove(id)
		p.mu.Unlock()
	}
}

// ApplyInfo replaces the device identity. Empty fields keep their
// previous value so partial info messages do not erase identity.
func (p *Proxy) ApplyInfo(info Info) {
	p.mu.Lock()
	defer p.mu.Unlock()

	merge := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	merge(&p.info.DeviceID, info.DeviceID)
	merge(&p.info.Name, info.Name)
	merge(&p.info.Category, info.Category)
	merge(&p.info.ProductID, info.ProductID)
	merge(&p.info.ProductModel, info.ProductModel)
	merge(&p.info.ProductName, info.ProductName)
	merge(&p.info.HardwareVersion, info.HardwareVersion)
	merge(&p.info.DeviceVersion, info.DeviceVersion)
	merge(&p.info.ProtocolVersion, info.ProtocolVersion)
}

// ApplyDatapoints stores the datapoints and notifies update callbacks with them.
func (p *Proxy) ApplyDatapoints(updates []Datapoint) {
	p.mu.Lock()
	next := maps.Clone(p.datapoints)
	for _, dp := range updates {
		next[dp.ID] = dp
	}
	p.datapoints = next
	callbacks := p.updated.snapshot()
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(updates)
	}
}

// SetConnected records a status change. Callbacks fire only on transitions.
func (p *Proxy) SetConnected(connected bool) {
	p.mu.Lock()
	if p.connected == connected {
		p.mu.Unlock()
		return
	}
	p.connected = connected
	var callbacks []func()
	if connected {
		callbacks = p.onConnect.snapshot()
	} else {
		callbacks = p.onDisconnect.snapshot()
	}
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// UpdateRSSI stores the signal strength and runs the RSSI callbacks only.
// Hearing an advertisement says nothing about the GATT connection, so
// update and connect callbacks do not fire.
func (p *Proxy) UpdateRSSI(rssi int) {
	p.mu.Lock()
	p.rssi = rssi
	p.hasRSSI = true
	callbacks := p.onRSSI.snapshot()
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

var _ Device = (*Proxy)(nil)
