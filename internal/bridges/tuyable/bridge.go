package tuyable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/device"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/mqtt"
)

const (
	// setupTimeout bounds registering a device and its entities.
	setupTimeout = 30 * time.Second

	// healthTimeout bounds a registry health update.
	healthTimeout = 5 * time.Second

	qosAtLeastOnce byte = 1
)

// Logger is the logging interface used throughout the package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the subset of the MQTT client the bridge publishes with.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceSource hands out devices reported by the device manager.
// This interface is satisfied by *devicemanager.Manager.
type DeviceSource interface {
	OnDeviceReady(fn func(*devicemanager.Proxy))
	Lookup(address string) (*devicemanager.Proxy, bool)
}

// Registry persists devices, entities and entity state.
// This interface is satisfied by *device.Registry.
type Registry interface {
	RegisterDevice(ctx context.Context, dev *device.Device) error
	RegisterEntity(ctx context.Context, entity *device.Entity) error
	UpdateEntityState(ctx context.Context, entityID string, state device.EntityState) error
	LastState(ctx context.Context, entityID string) (*device.EntityState, error)
	UpdateHealth(ctx context.Context, id string, status device.HealthStatus, lastSeen time.Time) error
}

// StateHistory records entity state changes.
// This interface is satisfied by *device.SQLiteStateHistoryRepository.
type StateHistory interface {
	RecordStateChange(ctx context.Context, entry device.StateHistoryEntry) error
}

// Telemetry receives numeric readings and advertisements.
// This interface is satisfied by *influxdb.Client.
type Telemetry interface {
	WriteSensorReading(r influxdb.SensorReading)
	WriteAdvertisement(address, name string, rssi int, seenAt time.Time)
}

// BridgeOptions holds the collaborators of a Bridge.
type BridgeOptions struct {
	Config config.BridgeConfig

	MQTTClient MQTTClient
	Topics     mqtt.Topics
	Devices    DeviceSource

	// Registry, History, Telemetry and Credentials are optional.
	Registry    Registry
	History     StateHistory
	Telemetry   Telemetry
	Credentials devicemanager.CredentialsProvider

	// HealthInterval defaults to DefaultHealthInterval.
	HealthInterval time.Duration

	Version string
	Logger  Logger
}

// Advertisement is one BLE advertisement heard by the scanner.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	SeenAt  time.Time
}

// DeviceStatus is the live view of a managed device.
type DeviceStatus struct {
	Address   string `json:"address"`
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Entities  int    `json:"entities"`
}

// EntityStatus is the live view of an entity.
type EntityStatus struct {
	EntityID  string `json:"entity_id"`
	UniqueID  string `json:"unique_id"`
	Key       string `json:"key"`
	Available bool   `json:"available"`
}

type managedDevice struct {
	proxy       *devicemanager.Proxy
	coordinator *Coordinator
	sensors     *SensorSet
	info        DeviceInfo
	online      bool
	removeWatch func()
}

// Bridge plays the automation host for Tuya BLE devices. For every device
// the device manager reports it registers the device, runs a coordinator
// and sensors, and publishes entity state and bus events over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg         config.BridgeConfig
	mqtt        MQTTClient
	topics      mqtt.Topics
	source      DeviceSource
	registry    Registry
	history     StateHistory
	telemetry   Telemetry
	credentials devicemanager.CredentialsProvider
	health      *HealthReporter
	logger      Logger

	mu         sync.RWMutex
	devices    map[string]*managedDevice
	claimed    map[string]bool
	infos      map[string]DeviceInfo
	discovered map[string]bool
	lastValues map[string]any

	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("%w: MQTT client", ErrMissingDependency)
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("%w: device source", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	topics := opts.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics(opts.Config.TopicPrefix)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:         opts.Config,
		mqtt:        opts.MQTTClient,
		topics:      topics,
		source:      opts.Devices,
		registry:    opts.Registry,
		history:     opts.History,
		telemetry:   opts.Telemetry,
		credentials: opts.Credentials,
		logger:      logger,
		devices:     make(map[string]*managedDevice),
		claimed:     make(map[string]bool),
		infos:       make(map[string]DeviceInfo),
		discovered:  make(map[string]bool),
		lastValues:  make(map[string]any),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  Domain,
		Version:   opts.Version,
		Topic:     topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Devices:   b.deviceCounts,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// Start attaches to the device source and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	b.source.OnDeviceReady(b.setupDevice)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish healthy status", "error", err)
	}

	managed, _ := b.deviceCounts()
	b.logger.Info("bridge started", "prefix", b.topics.Prefix, "devices", managed)
	return nil
}

// Stop detaches every device and stops health reporting.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.mu.Lock()
		devices := make([]*managedDevice, 0, len(b.devices))
		for _, d := range b.devices {
			devices = append(devices, d)
		}
		b.mu.Unlock()

		for _, d := range devices {
			d.removeWatch()
			d.sensors.Close()
			d.coordinator.Close()
		}

		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// setupDevice runs once per ready device.
func (b *Bridge) setupDevice(proxy *devicemanager.Proxy) {
	address := proxy.Address()

	b.mu.Lock()
	if b.claimed[address] || b.ctx.Err() != nil {
		b.mu.Unlock()
		return
	}
	b.claimed[address] = true
	info := BuildDeviceInfo(proxy)
	b.infos[address] = info
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, setupTimeout)
	defer cancel()

	if err := b.RegisterDevice(ctx, proxy, info); err != nil {
		b.logger.Warn("failed to register device", "address", address, "error", err)
	}

	product, known := ProductFor(proxy)
	if !known {
		b.logger.Warn("product not in catalog", "address", address,
			"category", proxy.Category(), "product_id", proxy.ProductID())
	}

	coordinator := NewCoordinator(CoordinatorConfig{
		Device:          proxy,
		Bus:             b,
		DisconnectDelay: b.cfg.DisconnectDelay,
		Logger:          b.logger,
	})
	if proxy.Connected() {
		coordinator.handleConnected()
	}

	sensors, err := SetupSensors(ctx, b, coordinator, product, b.logger)
	if err != nil {
		coordinator.Close()
		b.mu.Lock()
		delete(b.claimed, address)
		b.mu.Unlock()
		b.logger.Error("failed to set up sensors", "address", address, "error", err)
		return
	}

	md := &managedDevice{
		proxy:       proxy,
		coordinator: coordinator,
		sensors:     sensors,
		info:        info,
	}
	md.removeWatch = coordinator.AddListener(func() { b.watchConnection(address) })

	b.mu.Lock()
	b.devices[address] = md
	b.mu.Unlock()

	b.watchConnection(address)
	b.logger.Info("device set up", "address", address, "name", info.Name,
		"entities", len(sensors.Entities()))
}

// watchConnection mirrors coordinator connectivity into the registry.
func (b *Bridge) watchConnection(address string) {
	b.mu.Lock()
	md, ok := b.devices[address]
	if !ok {
		b.mu.Unlock()
		return
	}
	online := md.coordinator.Connected()
	changed := online != md.online
	md.online = online
	b.mu.Unlock()

	if !changed || b.registry == nil {
		return
	}

	status := device.HealthStatusOffline
	if online {
		status = device.HealthStatusOnline
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := b.registry.UpdateHealth(ctx, address, status, time.Now().UTC()); err != nil {
		b.logger.Warn("failed to update device health", "address", address, "error", err)
	}
}

// RegisterDevice implements EntityRegistry.
func (b *Bridge) RegisterDevice(ctx context.Context, dev devicemanager.Device, info DeviceInfo) error {
	if b.registry == nil {
		return nil
	}
	return b.registry.RegisterDevice(ctx, &device.Device{
		ID:           dev.Address(),
		DeviceID:     dev.DeviceID(),
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		HWVersion:    info.HWVersion,
		SWVersion:    info.SWVersion,
		Category:     dev.Category(),
		ProductID:    dev.ProductID(),
		HealthStatus: device.HealthStatusUnknown,
	})
}

// RegisterEntity implements EntityRegistry. The entity description is
// persisted and published retained on the config topic.
func (b *Bridge) RegisterEntity(ctx context.Context, reg EntityRegistration) error {
	desc := reg.Description
	if b.registry != nil {
		err := b.registry.RegisterEntity(ctx, &device.Entity{
			UniqueID:       reg.UniqueID,
			EntityID:       reg.EntityID,
			DeviceID:       reg.Address,
			Key:            desc.Key,
			Name:           desc.Name,
			Icon:           desc.Icon,
			DeviceClass:    desc.DeviceClass,
			Unit:           desc.Unit,
			StateClass:     desc.StateClass,
			EntityCategory: desc.EntityCategory,
			Enabled:        desc.EnabledByDefault,
		})
		if err != nil {
			return err
		}
	}

	b.mu.RLock()
	info := b.infos[reg.Address]
	b.mu.RUnlock()

	msg := newEntityConfigMessage(reg, b.topics.EntityState(reg.EntityID), info)
	return b.publishJSON(b.topics.EntityConfig(reg.EntityID), msg, true)
}

// WriteState implements StateWriter. The state is published retained,
// persisted, recorded in history when the value changed and written to
// telemetry when numeric.
func (b *Bridge) WriteState(ctx context.Context, st State) error {
	var errs []error

	if err := b.publishJSON(b.topics.EntityState(st.EntityID), newStateMessage(st), true); err != nil {
		errs = append(errs, err)
	}

	now := time.Now().UTC()
	if b.registry != nil {
		err := b.registry.UpdateEntityState(ctx, st.EntityID, device.EntityState{
			EntityID:   st.EntityID,
			Value:      st.Value,
			Unit:       st.Unit,
			Icon:       st.Icon,
			Attributes: st.Attributes,
			Available:  st.Available,
			UpdatedAt:  now,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if b.history != nil && b.valueChanged(st.EntityID, st.Value) {
		err := b.history.RecordStateChange(ctx, device.StateHistoryEntry{
			EntityID:   st.EntityID,
			DeviceID:   st.Address,
			Value:      st.Value,
			Attributes: st.Attributes,
			Source:     device.StateHistorySourceDevice,
			CreatedAt:  now,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if b.telemetry != nil && st.Available {
		if v, ok := numericValue(st.Value); ok {
			b.telemetry.WriteSensorReading(influxdb.SensorReading{
				Address:     st.Address,
				DeviceID:    st.DeviceID,
				EntityID:    st.EntityID,
				Key:         st.Key,
				DeviceClass: st.DeviceClass,
				Unit:        st.Unit,
				Value:       v,
				Time:        now,
			})
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrStateWriteFailed, st.EntityID, errors.Join(errs...))
	}
	return nil
}

// Fire implements EventBus.
func (b *Bridge) Fire(_ context.Context, ev Event) error {
	msg := NewEventMessage(ev)
	if err := b.publishJSON(b.topics.Event(ev.Type), msg, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEventFailed, ev.Type, err)
	}
	b.logger.Info("event fired", "type", ev.Type, "id", msg.ID)
	return nil
}

// LastState implements StateRestorer.
func (b *Bridge) LastState(ctx context.Context, entityID string) (RestoredState, bool, error) {
	if b.registry == nil {
		return RestoredState{}, false, nil
	}
	st, err := b.registry.LastState(ctx, entityID)
	if errors.Is(err, device.ErrStateNotFound) {
		return RestoredState{}, false, nil
	}
	if err != nil {
		return RestoredState{}, false, err
	}
	b.mu.Lock()
	b.lastValues[entityID] = st.Value
	b.mu.Unlock()
	return RestoredState{Value: st.Value, Unit: st.Unit}, true, nil
}

// HandleAdvertisement refreshes the RSSI of known devices and announces
// unknown ones once.
func (b *Bridge) HandleAdvertisement(ctx context.Context, adv Advertisement) {
	address := devicemanager.NormalizeAddress(adv.Address)
	seenAt := adv.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	if b.telemetry != nil {
		b.telemetry.WriteAdvertisement(address, adv.Name, adv.RSSI, seenAt)
	}

	if proxy, ok := b.source.Lookup(address); ok {
		proxy.UpdateRSSI(adv.RSSI)
		return
	}

	b.mu.Lock()
	if b.discovered[address] {
		b.mu.Unlock()
		return
	}
	b.discovered[address] = true
	b.mu.Unlock()

	msg := DiscoveryMessage{
		Address:   address,
		Name:      ReadableName(ctx, Discovery{Address: address, Name: adv.Name}, b.credentials),
		RSSI:      adv.RSSI,
		Timestamp: seenAt.UTC(),
	}
	if err := b.publishJSON(b.topics.Discovery(address), msg, true); err != nil {
		b.logger.Warn("failed to publish discovery", "address", address, "error", err)
		return
	}
	b.logger.Info("discovered device", "address", address, "name", msg.Name, "rssi", adv.RSSI)
}

// Devices returns the managed devices ordered by address.
func (b *Bridge) Devices() []DeviceStatus {
	b.mu.RLock()
	out := make([]DeviceStatus, 0, len(b.devices))
	for address, d := range b.devices {
		out = append(out, DeviceStatus{
			Address:   address,
			DeviceID:  d.proxy.DeviceID(),
			Name:      d.info.Name,
			Connected: d.coordinator.Connected(),
			Entities:  len(d.sensors.entities),
		})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Entities returns the entities of a managed device.
func (b *Bridge) Entities(address string) ([]EntityStatus, error) {
	b.mu.RLock()
	d, ok := b.devices[devicemanager.NormalizeAddress(address)]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}

	entities := d.sensors.Entities()
	out := make([]EntityStatus, 0, len(entities))
	for _, e := range entities {
		out = append(out, EntityStatus{
			EntityID:  e.EntityID(),
			UniqueID:  e.UniqueID(),
			Key:       e.Description().Key,
			Available: e.Available(),
		})
	}
	return out, nil
}

func (b *Bridge) deviceCounts() (managed, connected int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, d := range b.devices {
		managed++
		if d.coordinator.Connected() {
			connected++
		}
	}
	return managed, connected
}

// valueChanged records value as the entity's latest and reports whether
// it differs from the previous one.
func (b *Bridge) valueChanged(entityID string, value any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, seen := b.lastValues[entityID]
	b.lastValues[entityID] = value
	return !seen || !reflect.DeepEqual(prev, value)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, qosAtLeastOnce, retained)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
