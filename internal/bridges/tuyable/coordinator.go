package tuyable

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// DefaultDisconnectDelay is how long a device may stay disconnected
// before its entities become unavailable.
const DefaultDisconnectDelay = 10 * time.Minute

// eventTimeout bounds a single bus event publish.
const eventTimeout = 5 * time.Second

type stopper interface {
	Stop() bool
}

// CoordinatorConfig holds the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Device devicemanager.Device

	// Bus receives fingerbot and lock events. Optional.
	Bus EventBus

	// DisconnectDelay debounces disconnects. Default: DefaultDisconnectDelay.
	DisconnectDelay time.Duration

	Logger Logger
}

// Coordinator follows one device's connection and datapoint callbacks,
// fans updates out to entity listeners and raises bus events.
//
// A disconnect is only reported to listeners after DisconnectDelay
// without a reconnect or update. RSSI refreshes notify listeners but
// leave the connection state and a pending disconnect alone.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	device devicemanager.Device
	bus    EventBus
	delay  time.Duration
	logger Logger

	afterFunc func(d time.Duration, f func()) stopper

	mu        sync.Mutex
	connected bool
	timer     stopper
	timerGen  uint64
	closed    bool
	listeners []listenerEntry
	nextID    int

	unregister []func()
}

type listenerEntry struct {
	id int
	fn func()
}

// NewCoordinator registers callbacks on the device. The coordinator
// starts disconnected; the first connect or update marks it connected.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	delay := cfg.DisconnectDelay
	if delay <= 0 {
		delay = DefaultDisconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Coordinator{
		device: cfg.Device,
		bus:    cfg.Bus,
		delay:  delay,
		logger: logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}

	c.unregister = []func(){
		cfg.Device.RegisterConnectedCallback(c.handleConnected),
		cfg.Device.RegisterCallback(c.handleUpdate),
		cfg.Device.RegisterDisconnectedCallback(c.handleDisconnected),
		cfg.Device.RegisterRSSICallback(c.notify),
	}
	return c
}

// Device returns the coordinated device.
func (c *Coordinator) Device() devicemanager.Device {
	return c.device
}

// Connected reports whether the device is considered connected.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// AddListener registers fn to run after every update or connection
// change. The returned function removes it.
func (c *Coordinator) AddListener(fn func()) (remove func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close unregisters the device callbacks and cancels a pending disconnect.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelTimerLocked()
	unregister := c.unregister
	c.unregister = nil
	c.mu.Unlock()

	for _, fn := range unregister {
		fn()
	}
}

func (c *Coordinator) handleConnected() {
	c.mu.Lock()
	c.cancelTimerLocked()
	changed := !c.connected
	c.connected = true
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

func (c *Coordinator) handleUpdate(updates []devicemanager.Datapoint) {
	c.handleConnected()
	c.notify()

	product, ok := ProductFor(c.device)
	if !ok {
		return
	}
	events := buttonPressEvents(c.device, product.Fingerbot, updates)
	events = append(events, lockEvents(c.device, product.Lock, updates)...)
	for _, ev := range events {
		c.fire(ev)
	}
}

func (c *Coordinator) handleDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil || c.closed {
		return
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = c.afterFunc(c.delay, func() { c.disconnectExpired(gen) })
	c.logger.Debug("device disconnected, debouncing", "address", c.device.Address(), "delay", c.delay)
}

// disconnectExpired runs when the debounce timer fires. A timer that was
// cancelled after it started running finds a newer generation and exits.
func (c *Coordinator) disconnectExpired(gen uint64) {
	c.mu.Lock()
	if c.timer == nil || c.timerGen != gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.connected = false
	c.mu.Unlock()

	c.logger.Info("device unavailable", "address", c.device.Address())
	c.notify()
}

// cancelTimerLocked stops a pending disconnect. c.mu must be held.
func (c *Coordinator) cancelTimerLocked() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.timerGen++
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fns := make([]func(), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Coordinator) fire(ev Event) {
	if c.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := c.bus.Fire(ctx, ev); err != nil {
		c.logger.Warn("failed to fire event", "type", ev.Type, "address", c.device.Address(), "error", err)
	}
}
