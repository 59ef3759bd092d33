package tuyable

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/catalog"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// writeTimeout bounds a single entity state write.
const writeTimeout = 5 * time.Second

const entityDomain = "sensor"

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// UniqueID returns the stable id of a device's entity.
func UniqueID(deviceID, key string) string {
	return deviceID + "-" + key
}

// EntityID returns the entity id for a unique id, e.g.
// "bf12ab-battery" → "sensor.bf12ab_battery".
func EntityID(uniqueID string) string {
	return entityDomain + "." + slugify(uniqueID)
}

func slugify(s string) string {
	return strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// Entity is a sensor entity attached to a coordinator.
type Entity interface {
	UniqueID() string
	EntityID() string
	Description() SensorDescription
	Available() bool

	// HandleUpdate recomputes the state from the device and writes it.
	HandleUpdate(ctx context.Context)

	registration() EntityRegistration
}

type baseEntity struct {
	device      devicemanager.Device
	product     catalog.ProductInfo
	coordinator *Coordinator
	host        Host
	logger      Logger
	description SensorDescription
	uniqueID    string
	entityID    string
}

func newBaseEntity(host Host, coordinator *Coordinator, product catalog.ProductInfo, desc SensorDescription, logger Logger) baseEntity {
	device := coordinator.Device()
	uniqueID := UniqueID(device.DeviceID(), desc.Key)
	return baseEntity{
		device:      device,
		product:     product,
		coordinator: coordinator,
		host:        host,
		logger:      logger,
		description: desc,
		uniqueID:    uniqueID,
		entityID:    EntityID(uniqueID),
	}
}

func (e *baseEntity) UniqueID() string               { return e.uniqueID }
func (e *baseEntity) EntityID() string               { return e.entityID }
func (e *baseEntity) Description() SensorDescription { return e.description }

func (e *baseEntity) registration() EntityRegistration {
	return EntityRegistration{
		UniqueID:    e.uniqueID,
		EntityID:    e.entityID,
		Address:     e.device.Address(),
		DeviceID:    e.device.DeviceID(),
		Description: e.description,
	}
}

func (e *baseEntity) state(value any, unit, icon string, attrs map[string]any, available bool) State {
	return State{
		EntityID:    e.entityID,
		UniqueID:    e.uniqueID,
		Address:     e.device.Address(),
		DeviceID:    e.device.DeviceID(),
		Key:         e.description.Key,
		DeviceClass: e.description.DeviceClass,
		Value:       value,
		Unit:        unit,
		Icon:        icon,
		Attributes:  attrs,
		Available:   available,
	}
}

func (e *baseEntity) write(ctx context.Context, st State) {
	if err := e.host.WriteState(ctx, st); err != nil {
		e.logger.Warn("failed to write entity state", "entity_id", e.entityID, "error", err)
	}
}

// Sensor reports one datapoint, or a computed value, as entity state.
type Sensor struct {
	baseEntity
	mapping SensorMapping

	mu       sync.Mutex
	value    any
	unit     string
	icon     string
	restored bool
}

func newSensor(base baseEntity, mapping SensorMapping) *Sensor {
	return &Sensor{
		baseEntity: base,
		mapping:    mapping,
		unit:       mapping.Description.Unit,
		icon:       mapping.Description.Icon,
	}
}

// NativeValue returns the current value.
func (s *Sensor) NativeValue() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Unit returns the current unit of measurement.
func (s *Sensor) Unit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit
}

// Icon returns the current icon.
func (s *Sensor) Icon() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.icon
}

// Available reports whether the device is connected and the mapping's
// availability check, if any, passes.
func (s *Sensor) Available() bool {
	if !s.coordinator.Connected() {
		return false
	}
	if s.mapping.IsAvailable == nil {
		return true
	}
	return s.mapping.IsAvailable(s, s.product)
}

// HandleUpdate implements Entity.
func (s *Sensor) HandleUpdate(ctx context.Context) {
	available := s.Available()

	s.mu.Lock()
	if !s.applyLocked() {
		s.mu.Unlock()
		return
	}
	st := s.state(s.value, s.unit, s.icon, nil, available)
	s.mu.Unlock()

	s.write(ctx, st)
}

// applyLocked updates the value from the device. It returns false when
// the datapoint is missing and nothing should be written. A restored
// sensor keeps its value but still writes, so availability follows the
// device.
func (s *Sensor) applyLocked() bool {
	if s.mapping.Getter != nil {
		if v, ok := s.mapping.Getter(s.device); ok {
			s.value = v
		}
		return true
	}

	dp, ok := s.device.Datapoints().Get(s.mapping.DPID)
	if !ok || dp.Value == nil {
		return s.restored
	}

	switch v := dp.Value.(type) {
	case int64:
		s.applyNumber(dp.Type, v)
	case bool:
		if v {
			s.value = int64(1)
		} else {
			s.value = int64(0)
		}
	case []byte:
		s.value = hex.EncodeToString(v)
	default:
		s.value = fmt.Sprint(v)
	}
	return true
}

func (s *Sensor) applyNumber(typ devicemanager.DatapointType, v int64) {
	switch typ {
	case devicemanager.DatapointTypeEnum:
		s.value = v
		if options := s.description.Options; v >= 0 && v < int64(len(options)) {
			s.value = options[v]
		}
		if icons := s.mapping.Icons; v >= 0 && v < int64(len(icons)) {
			s.icon = icons[v]
		}
	case devicemanager.DatapointTypeValue:
		coefficient := s.mapping.Coefficient
		if coefficient == 0 {
			coefficient = 1
		}
		result := float64(v) / coefficient
		if s.description.DeviceClass == DeviceClassBattery {
			s.value = int64(result)
		} else {
			s.value = result
		}
	default:
		s.value = v
	}
}

// restore fills an empty sensor from its last persisted state.
func (s *Sensor) restore(ctx context.Context) {
	s.mu.Lock()
	empty := s.value == nil
	s.mu.Unlock()
	if !empty {
		return
	}

	last, ok, err := s.host.LastState(ctx, s.entityID)
	if err != nil {
		s.logger.Warn("failed to restore entity state", "entity_id", s.entityID, "error", err)
		return
	}
	if !ok {
		return
	}

	available := s.Available()
	s.mu.Lock()
	s.value = last.Value
	s.restored = true
	if last.Unit != "" {
		s.unit = last.Unit
	}
	st := s.state(s.value, s.unit, s.icon, nil, available)
	s.mu.Unlock()

	s.write(ctx, st)
}

// LastUnlockSensor reports the unlock method a lock used most recently.
// Its attributes carry the method and the datapoint value.
type LastUnlockSensor struct {
	baseEntity
	methods map[int]string
	order   []int

	mu         sync.Mutex
	value      any
	attributes map[string]any
	lastValues map[int]any
}

func newLastUnlockSensor(base baseEntity, mapping LastUnlockMapping) *LastUnlockSensor {
	return &LastUnlockSensor{
		baseEntity: base,
		methods:    mapping.UnlockMethods,
		order:      slices.Sorted(maps.Keys(mapping.UnlockMethods)),
		attributes: map[string]any{},
		lastValues: make(map[int]any, len(mapping.UnlockMethods)),
	}
}

// NativeValue returns the last unlock method label, or nil.
func (l *LastUnlockSensor) NativeValue() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Attributes returns a copy of the state attributes.
func (l *LastUnlockSensor) Attributes() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.attributes)
}

// Available implements Entity.
func (l *LastUnlockSensor) Available() bool {
	return l.coordinator.Connected()
}

// HandleUpdate implements Entity. A timestamped datapoint wins when it is
// the newest; an untimestamped one wins when its value changed since it
// was last seen. The state is written even when no method won.
func (l *LastUnlockSensor) HandleUpdate(ctx context.Context) {
	available := l.Available()
	dps := l.device.Datapoints()

	l.mu.Lock()
	var (
		method    string
		value     any
		found     bool
		lastTime  time.Time
		timedSeen bool
	)
	for _, id := range l.order {
		dp, ok := dps.Get(id)
		if !ok {
			continue
		}
		switch {
		case !dp.Timestamp.IsZero():
			if !timedSeen || dp.Timestamp.After(lastTime) {
				timedSeen = true
				lastTime = dp.Timestamp
				method, value, found = l.label(id), dp.Value, true
			}
		case dp.Value != nil:
			if !reflect.DeepEqual(l.lastValues[id], dp.Value) {
				method, value, found = l.label(id), dp.Value, true
				l.lastValues[id] = dp.Value
			}
		}
	}
	if found {
		l.value = method
		l.attributes = map[string]any{"method": method, "value": value}
	}
	st := l.state(l.value, "", l.description.Icon, maps.Clone(l.attributes), available)
	l.mu.Unlock()

	l.write(ctx, st)
}

func (l *LastUnlockSensor) label(id int) string {
	if name, ok := l.methods[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// SensorSet is the entities created for one device.
type SensorSet struct {
	entities []Entity
	remove   []func()
}

// Entities returns the entities in creation order.
func (s *SensorSet) Entities() []Entity {
	return slices.Clone(s.entities)
}

// Close detaches the entities from their coordinator.
func (s *SensorSet) Close() {
	for _, fn := range s.remove {
		fn()
	}
	s.remove = nil
}

// SetupSensors creates the entities of the coordinator's device: the
// signal strength sensor, then one entity per product mapping. Sensors
// whose mapping does not force them are only created when the device
// already reports the datapoint.
//
// Every entity is registered with the host, refreshed from the current
// datapoints and subscribed to the coordinator. Sensors still empty after
// the refresh are restored from their last persisted state.
func SetupSensors(ctx context.Context, host Host, coordinator *Coordinator, product catalog.ProductInfo, logger Logger) (*SensorSet, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	device := coordinator.Device()

	entities := []Entity{newSensor(newBaseEntity(host, coordinator, product, rssiMapping.Description, logger), rssiMapping)}
	for _, m := range MappingsFor(device.Category(), device.ProductID()) {
		switch mapping := m.(type) {
		case LastUnlockMapping:
			entities = append(entities, newLastUnlockSensor(newBaseEntity(host, coordinator, product, mapping.Description, logger), mapping))
		case SensorMapping:
			if !mapping.ForceAdd && !hasDatapoint(device, mapping) {
				continue
			}
			entities = append(entities, newSensor(newBaseEntity(host, coordinator, product, mapping.Description, logger), mapping))
		}
	}

	set := &SensorSet{entities: entities}
	for _, e := range entities {
		if err := host.RegisterEntity(ctx, e.registration()); err != nil {
			return nil, fmt.Errorf("registering %s: %w", e.EntityID(), err)
		}
	}

	for _, e := range entities {
		e.HandleUpdate(ctx)
		if s, ok := e.(*Sensor); ok {
			s.restore(ctx)
		}
		set.remove = append(set.remove, coordinator.AddListener(func() {
			updateCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			e.HandleUpdate(updateCtx)
		}))
	}
	return set, nil
}

func hasDatapoint(device devicemanager.Device, mapping SensorMapping) bool {
	if mapping.DPType == nil {
		return device.Datapoints().HasID(mapping.DPID)
	}
	return device.Datapoints().HasID(mapping.DPID, *mapping.DPType)
}
