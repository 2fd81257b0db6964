package events

import (
	. "sunspecbridge/internal/core/domain"
	"sunspecbridge/pkg/sunspec"
)

// MeasurementsToUpdateEvents maps one canonical snapshot to sensor update
// events. Optional points that the device does not implement produce no
// event.
func MeasurementsToUpdateEvents(m *sunspec.Measurements) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AC_VOLTAGE,
		},
		Value:    m.ACVoltage,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AC_CURRENT,
		},
		Value:    m.ACCurrent,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_GRID_FREQUENCY,
		},
		Value:    m.FrequencyHz,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ACTIVE_POWER,
		},
		Value:    m.ActivePowerWatt,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_ENERGY,
		},
		Value:    float64(m.TotalEnergyWh) / 1000,
		Decimals: 3,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_OPERATING_STATE,
		},
		Value: sunspec.OperatingStateToString(m.OperatingState),
	})

	if m.DCVoltage != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DC_VOLTAGE,
			},
			Value:    *m.DCVoltage,
			Decimals: 1,
		})
	}
	if m.DCCurrent != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DC_CURRENT,
			},
			Value:    *m.DCCurrent,
			Decimals: 2,
		})
	}
	if m.DCPowerWatt != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DC_POWER,
			},
			Value:    *m.DCPowerWatt,
			Decimals: 1,
		})
	}
	if m.CabinetTemperature != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_CABINET_TEMPERATURE,
			},
			Value:    *m.CabinetTemperature,
			Decimals: 1,
		})
	}

	return events
}

// PowerLimitToUpdateEvents reports the limit applied to the device.
func PowerLimitToUpdateEvents(limit sunspec.PowerLimit) []any {
	percent := 100.0
	if limit.Enabled {
		percent = limit.Percent
	}
	return []any{
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_POWER_LIMIT,
			},
			Value:    percent,
			Decimals: 0,
		},
	}
}

// StalenessToUpdateEvents flags served data older than the staleness bound.
func StalenessToUpdateEvents(stale bool) []any {
	return []any{
		BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DATA_STALE,
			},
			Value: stale,
		},
	}
}
