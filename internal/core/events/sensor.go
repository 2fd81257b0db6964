package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"

	. "sunspecbridge/internal/core/domain"
	"sunspecbridge/pkg/sunspec"
)

const (
	SENSOR_ID_BRIDGE_STATE           = "bridge"
	SENSOR_ID_AC_VOLTAGE             = "ac_voltage"
	SENSOR_ID_AC_CURRENT             = "ac_current"
	SENSOR_ID_GRID_FREQUENCY         = "grid_frequency"
	SENSOR_ID_ACTIVE_POWER           = "active_power"
	SENSOR_ID_DC_VOLTAGE             = "dc_voltage"
	SENSOR_ID_DC_CURRENT             = "dc_current"
	SENSOR_ID_DC_POWER               = "dc_power"
	SENSOR_ID_CABINET_TEMPERATURE    = "cabinet_temperature"
	SENSOR_ID_TOTAL_ENERGY           = "total_energy"
	SENSOR_ID_OPERATING_STATE        = "operating_state"
	SENSOR_ID_POWER_LIMIT            = "power_limit"
	SENSOR_ID_DATA_STALE             = "data_stale"
	STATE_CLASS_MEASUREMENT          = "measurement"
	STATE_CLASS_TOTAL_INCREASING     = "total_increasing"
	DEVICE_CLASS_CURRENT             = "current"
	DEVICE_CLASS_ENERGY              = "energy"
	DEVICE_CLASS_FREQUENCY           = "frequency"
	DEVICE_CLASS_POWER               = "power"
	DEVICE_CLASS_TEMPERATURE         = "temperature"
	DEVICE_CLASS_VOLTAGE             = "voltage"
	DEVICE_CLASS_CONNECTIVITY        = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC          = "diagnostic"
	SENSOR_TYPE_SENSOR               = "sensor"
	SENSOR_TYPE_BINARY               = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sunspecbridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "SunSpec Bridge",
		Model:        "SunSpec Bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SunSpec Bridge %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(device Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         device,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(device.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func SourceDevice(info *sunspec.DeviceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("ssb_device_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// SourceDeviceSensors lists the sensors announced for the bridged device.
// Points the device does not implement are left out so discovery never
// advertises entities that would stay empty.
func SourceDeviceSensors(device Device, info *sunspec.DeviceInfo, hasDC bool, hasTemperature bool) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_AC_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "AC voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_AC_VOLTAGE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_AC_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "AC current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_AC_CURRENT),
	})

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_GRID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_GRID_FREQUENCY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_ACTIVE_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Active power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_ACTIVE_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_TOTAL_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(device.Id, SENSOR_ID_TOTAL_ENERGY),
	})

	sensors = append(sensors, GenericSensor{
		Device:     device,
		Id:         SENSOR_ID_OPERATING_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Operating state",
		UniqueId:   uniqueId(device.Id, SENSOR_ID_OPERATING_STATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:         device,
		Id:             SENSOR_ID_DATA_STALE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Data stale",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, SENSOR_ID_DATA_STALE),
	})

	if hasDC {
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                SENSOR_ID_DC_VOLTAGE,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "DC voltage",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			Icon:              "mdi:solar-power",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_DC_VOLTAGE),
		})
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                SENSOR_ID_DC_CURRENT,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "DC current",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			UnitOfMeasurement: "A",
			Icon:              "mdi:solar-power",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_DC_CURRENT),
		})
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                SENSOR_ID_DC_POWER,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "DC power",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			Icon:              "mdi:solar-power",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_DC_POWER),
		})
	}

	if hasTemperature {
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                SENSOR_ID_CABINET_TEMPERATURE,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Cabinet temperature",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_TEMPERATURE,
			UnitOfMeasurement: "°C",
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:          uniqueId(device.Id, SENSOR_ID_CABINET_TEMPERATURE),
		})
	}

	if info.SupportsPowerLimit {
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                SENSOR_ID_POWER_LIMIT,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Power limit",
			StateClass:        STATE_CLASS_MEASUREMENT,
			UnitOfMeasurement: "%",
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			Icon:              "mdi:car-speed-limiter",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_POWER_LIMIT),
		})
	}

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
