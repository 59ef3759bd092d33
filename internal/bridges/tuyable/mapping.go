package tuyable

import (
	"strconv"

	"github.com/nerrad567/tuyable-bridge/internal/catalog"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
)

// Device classes.
const (
	DeviceClassBattery        = "battery"
	DeviceClassCO2            = "carbon_dioxide"
	DeviceClassDuration       = "duration"
	DeviceClassEnum           = "enum"
	DeviceClassHumidity       = "humidity"
	DeviceClassMoisture       = "moisture"
	DeviceClassSignalStrength = "signal_strength"
	DeviceClassTemperature    = "temperature"
	DeviceClassWater          = "water"
)

// Units.
const (
	UnitPercentage  = "%"
	UnitCelsius     = "°C"
	UnitPPM         = "ppm"
	UnitDBm         = "dBm"
	UnitMinutes     = "min"
	UnitSeconds     = "s"
	UnitMilliliters = "mL"
)

const (
	StateClassMeasure  = "measurement"
	CategoryDiagnostic = "diagnostic"
)

// Enum states.
const (
	CO2LevelAlarm  = "alarm"
	CO2LevelNormal = "normal"

	BatteryStateLow    = "low"
	BatteryStateNormal = "normal"
	BatteryStateHigh   = "high"

	BatteryNotCharging = "not_charging"
	BatteryCharging    = "charging"
	BatteryCharged     = "charged"
)

// SignalStrengthDPID is the pseudo datapoint id of the RSSI sensor.
const SignalStrengthDPID = -1

const (
	batteryEnumDPID   = 104
	batteryEnumFactor = 20
	co2AlarmSwitchDP  = 13
)

// SensorDescription describes how an entity is presented.
type SensorDescription struct {
	Key              string
	Name             string
	Icon             string
	DeviceClass      string
	Unit             string
	StateClass       string
	EntityCategory   string
	Options          []string
	EnabledByDefault bool
}

// Getter computes a sensor value directly from the device. ok=false
// leaves the current value unchanged; a nil value with ok=true clears it.
type Getter func(device devicemanager.Device) (value any, ok bool)

// AvailabilityFunc narrows a sensor's availability beyond the
// coordinator's connection state.
type AvailabilityFunc func(sensor *Sensor, product catalog.ProductInfo) bool

// Mapping is either a SensorMapping or a LastUnlockMapping.
type Mapping interface {
	description() SensorDescription
}

// SensorMapping binds one datapoint to a sensor entity.
type SensorMapping struct {
	DPID        int
	Description SensorDescription

	// ForceAdd creates the sensor even when the device has not reported
	// the datapoint yet.
	ForceAdd bool

	// DPType, when set, restricts the datapoint type checked by ForceAdd=false.
	DPType *devicemanager.DatapointType

	Getter      Getter
	Coefficient float64
	Icons       []string
	IsAvailable AvailabilityFunc
}

func (m SensorMapping) description() SensorDescription { return m.Description }

// LastUnlockMapping reports which unlock method a lock used last.
// UnlockMethods maps datapoint ids to method labels.
type LastUnlockMapping struct {
	UnlockMethods map[int]string
	Description   SensorDescription
}

func (m LastUnlockMapping) description() SensorDescription { return m.Description }

// CategoryMapping holds the mappings of one category. Mapping is used for
// products not listed in Products.
type CategoryMapping struct {
	Products map[string][]Mapping
	Mapping  []Mapping
}

// sensor returns a SensorMapping with the defaults applied.
func sensor(dpID int, desc SensorDescription) SensorMapping {
	desc.EnabledByDefault = true
	return SensorMapping{DPID: dpID, Description: desc, ForceAdd: true, Coefficient: 1}
}

func batterySensor(dpID int) SensorMapping {
	return sensor(dpID, SensorDescription{
		Key:            "battery",
		DeviceClass:    DeviceClassBattery,
		Unit:           UnitPercentage,
		EntityCategory: CategoryDiagnostic,
		StateClass:     StateClassMeasure,
	})
}

func temperatureSensor(dpID int) SensorMapping {
	return sensor(dpID, SensorDescription{
		Key:         "temperature",
		DeviceClass: DeviceClassTemperature,
		Unit:        UnitCelsius,
		StateClass:  StateClassMeasure,
	})
}

func lastUnlockSensor(methods map[int]string) LastUnlockMapping {
	return LastUnlockMapping{
		UnlockMethods: methods,
		Description: SensorDescription{
			Key:              "last_unlock_method",
			Icon:             "mdi:account-lock-open",
			Name:             "Last Unlock Method",
			EnabledByDefault: true,
		},
	}
}

func (m SensorMapping) withCoefficient(c float64) SensorMapping {
	m.Coefficient = c
	return m
}

func (m SensorMapping) withIcons(icons ...string) SensorMapping {
	m.Icons = icons
	return m
}

func (m SensorMapping) withKey(key string) SensorMapping {
	m.Description.Key = key
	return m
}

// forProducts maps every product id to the same mapping list.
func forProducts(ids []string, mappings []Mapping, into map[string][]Mapping) {
	for _, id := range ids {
		into[id] = mappings
	}
}

var rssiMapping = SensorMapping{
	DPID: SignalStrengthDPID,
	Description: SensorDescription{
		Key:            "signal_strength",
		DeviceClass:    DeviceClassSignalStrength,
		Unit:           UnitDBm,
		StateClass:     StateClassMeasure,
		EntityCategory: CategoryDiagnostic,
	},
	ForceAdd:    true,
	Coefficient: 1,
	Getter:      rssiGetter,
}

func rssiGetter(device devicemanager.Device) (any, bool) {
	rssi, ok := device.RSSI()
	if !ok {
		return nil, true
	}
	return rssi, true
}

// batteryEnumGetter scales the 0..5 battery level of dp 104 to a percentage.
func batteryEnumGetter(device devicemanager.Device) (any, bool) {
	dp, ok := device.Datapoints().Get(batteryEnumDPID)
	if !ok {
		return nil, false
	}
	level, err := toInt(dp.Value)
	if err != nil {
		return nil, true
	}
	return level * batteryEnumFactor, true
}

// isCO2AlarmEnabled reports false while the alarm switch (dp 13) is off.
func isCO2AlarmEnabled(s *Sensor, _ catalog.ProductInfo) bool {
	dp, ok := s.device.Datapoints().Get(co2AlarmSwitchDP)
	if !ok {
		return true
	}
	return truthy(dp.Value)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, strconv.ErrSyntax
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []byte:
		return len(x) > 0
	default:
		return true
	}
}

var alarmLockOptions = []string{"wrong_finger", "wrong_password", "low_battery"}

var batteryStateIcons = []string{"mdi:battery-alert", "mdi:battery-50", "mdi:battery-check"}

var sensorMappings = buildSensorMappings()

func buildSensorMappings() map[string]CategoryMapping {
	co2 := sensor(1, SensorDescription{
		Key:         "carbon_dioxide_alarm",
		Icon:        "mdi:molecule-co2",
		DeviceClass: DeviceClassEnum,
		Options:     []string{CO2LevelAlarm, CO2LevelNormal},
	})
	co2.IsAvailable = isCO2AlarmEnabled

	lock := map[string][]Mapping{}
	forProducts([]string{"ludzroix", "isk2p555", "yy2bmcoh"}, []Mapping{
		sensor(21, SensorDescription{
			Key:         "alarm_lock",
			DeviceClass: DeviceClassEnum,
			Options:     alarmLockOptions,
		}),
		batterySensor(8),
	}, lock)
	lock["mqc2hevy"] = []Mapping{
		sensor(21, SensorDescription{
			Key:         "alarm_lock",
			Icon:        "mdi:alert",
			DeviceClass: DeviceClassEnum,
			Options:     alarmLockOptions,
		}),
		batterySensor(8),
		lastUnlockSensor(map[int]string{
			19: "ble",
			12: "fingerprint",
			62: "phone_remote",
			13: "password",
			14: "dynamic",
			55: "temporary",
			63: "voice_remote",
		}),
	}

	fingerbots := map[string][]Mapping{}
	forProducts([]string{"3yqdo5yt", "xhf790if"}, []Mapping{
		sensor(7, SensorDescription{
			Key:            "battery_charging",
			DeviceClass:    DeviceClassEnum,
			EntityCategory: CategoryDiagnostic,
			Options:        []string{BatteryNotCharging, BatteryCharging, BatteryCharged},
		}).withIcons("mdi:battery", "mdi:power-plug-battery", "mdi:battery-check"),
		batterySensor(8),
	}, fingerbots)
	forProducts([]string{"blliqpsj", "ndvkgsrm", "yiihr7zh", "neq16kgd"},
		[]Mapping{batterySensor(12)}, fingerbots)
	forProducts([]string{"ltak7e1p", "y6kttvd6", "yrnk7mnn", "nvr2rocq", "bnt7wajf", "rvdceqjh", "5xhbk964"},
		[]Mapping{batterySensor(12)}, fingerbots)

	batteryState := func(dpID int) SensorMapping {
		return sensor(dpID, SensorDescription{
			Key:            "battery_state",
			Icon:           "mdi:battery",
			DeviceClass:    DeviceClassEnum,
			EntityCategory: CategoryDiagnostic,
			Options:        []string{BatteryStateLow, BatteryStateNormal, BatteryStateHigh},
		}).withIcons(batteryStateIcons...)
	}
	moisture := func(dpID int) SensorMapping {
		return sensor(dpID, SensorDescription{
			Key:         "moisture",
			DeviceClass: DeviceClassMoisture,
			Unit:        UnitPercentage,
			StateClass:  StateClassMeasure,
		})
	}
	duration := func(dpID int, key, unit string) SensorMapping {
		return sensor(dpID, SensorDescription{
			Key:         key,
			DeviceClass: DeviceClassDuration,
			Unit:        unit,
			StateClass:  StateClassMeasure,
		})
	}

	bottleBattery := batterySensor(batteryEnumDPID)
	bottleBattery.Getter = batteryEnumGetter

	return map[string]CategoryMapping{
		"co2bj": {Products: map[string][]Mapping{
			"59s19z5m": {
				co2,
				sensor(2, SensorDescription{
					Key:         "carbon_dioxide",
					DeviceClass: DeviceClassCO2,
					Unit:        UnitPPM,
					StateClass:  StateClassMeasure,
				}),
				batterySensor(15),
				temperatureSensor(18),
				sensor(19, SensorDescription{
					Key:         "humidity",
					DeviceClass: DeviceClassHumidity,
					Unit:        UnitPercentage,
					StateClass:  StateClassMeasure,
				}),
			},
		}},
		"ms": {Products: lock},
		"jtmspro": {Products: map[string][]Mapping{
			"hc7n0urm": {
				sensor(21, SensorDescription{
					Key:         "alarm_lock",
					Icon:        "mdi:alarm-light-outline",
					DeviceClass: DeviceClassEnum,
					Options:     []string{"low_battery", "power_off"},
				}),
			},
		}},
		"szjqr": {Products: fingerbots},
		"wsdcg": {Products: map[string][]Mapping{
			"ojzlzzsw": {
				temperatureSensor(1).withCoefficient(10),
				moisture(2),
				batteryState(3),
				batterySensor(4),
			},
		}},
		"zwjcy": {Products: map[string][]Mapping{
			"gvygg3m8": {
				temperatureSensor(5).withCoefficient(10).withKey("temp_current"),
				moisture(3),
				batteryState(14),
				batterySensor(15).withKey("battery_percentage"),
			},
		}},
		"znhsb": {Products: map[string][]Mapping{
			"cdlandip": {
				temperatureSensor(101),
				sensor(102, SensorDescription{
					Key:         "water_intake",
					DeviceClass: DeviceClassWater,
					Unit:        UnitMilliliters,
					StateClass:  StateClassMeasure,
				}),
				bottleBattery,
			},
		}},
		"ggq": {Products: map[string][]Mapping{
			"6pahkcau": {
				batterySensor(11),
				duration(6, "time_left", UnitMinutes),
			},
			"hfgdqhho": {
				batterySensor(11),
				duration(111, "use_time_z1", UnitSeconds),
				duration(110, "use_time_z2", UnitSeconds),
			},
		}},
	}
}

// MappingsFor returns the sensor mappings of a product: the product's own
// list, else the category default, else none.
func MappingsFor(category, productID string) []Mapping {
	cat, ok := sensorMappings[category]
	if !ok || cat.Products == nil {
		return nil
	}
	if m, ok := cat.Products[productID]; ok {
		return m
	}
	return cat.Mapping
}
