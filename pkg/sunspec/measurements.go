package sunspec

import (
	"fmt"
	"time"
)

// SunSpec inverter operating states (model 101, St)
const (
	OperatingStateOff          uint16 = 1
	OperatingStateSleeping     uint16 = 2
	OperatingStateStarting     uint16 = 3
	OperatingStateMPPT         uint16 = 4
	OperatingStateThrottled    uint16 = 5
	OperatingStateShuttingDown uint16 = 6
	OperatingStateFault        uint16 = 7
	OperatingStateStandby      uint16 = 8
)

const (
	OperatingStateOffStr          = "off"
	OperatingStateSleepingStr     = "sleeping"
	OperatingStateStartingStr     = "starting"
	OperatingStateMPPTStr         = "mppt_tracking"
	OperatingStateThrottledStr    = "throttled"
	OperatingStateShuttingDownStr = "shutting_down"
	OperatingStateFaultStr        = "fault"
	OperatingStateStandbyStr      = "standby"
	OperatingStateUnknownStr      = "unknown"
)

func OperatingStateToString(state uint16) string {
	switch state {
	case OperatingStateOff:
		return OperatingStateOffStr
	case OperatingStateSleeping:
		return OperatingStateSleepingStr
	case OperatingStateStarting:
		return OperatingStateStartingStr
	case OperatingStateMPPT:
		return OperatingStateMPPTStr
	case OperatingStateThrottled:
		return OperatingStateThrottledStr
	case OperatingStateShuttingDown:
		return OperatingStateShuttingDownStr
	case OperatingStateFault:
		return OperatingStateFaultStr
	case OperatingStateStandby:
		return OperatingStateStandbyStr
	default:
		return fmt.Sprintf("%s(%d)", OperatingStateUnknownStr, state)
	}
}

// Measurements is the canonical, device-agnostic snapshot of one poll cycle.
// Optional quantities a device cannot provide are nil and end up as SunSpec
// not-implemented sentinels on the wire. A Measurements value is never
// mutated after construction; the poll loop replaces it wholesale.
type Measurements struct {
	ACVoltage       float64  `json:"ac_voltage"`
	ACCurrent       float64  `json:"ac_current"`
	FrequencyHz     float64  `json:"frequency_hz"`
	ActivePowerWatt float64  `json:"active_power_watt"`
	ReactivePowerVA *float64 `json:"reactive_power_var,omitempty"`
	ApparentPowerVA *float64 `json:"apparent_power_va,omitempty"`
	TotalEnergyWh   uint64   `json:"total_energy_wh"`

	DCVoltage   *float64 `json:"dc_voltage,omitempty"`
	DCCurrent   *float64 `json:"dc_current,omitempty"`
	DCPowerWatt *float64 `json:"dc_power_watt,omitempty"`

	CabinetTemperature *float64 `json:"cabinet_temperature,omitempty"`

	OperatingState uint16    `json:"operating_state"`
	AcquiredAt     time.Time `json:"acquired_at"`
}

func (m Measurements) OperatingStateStr() string {
	return OperatingStateToString(m.OperatingState)
}

// DeviceInfo holds the identity block served as the SunSpec Common model.
type DeviceInfo struct {
	Manufacturer       string `json:"manufacturer"`
	Model              string `json:"model"`
	Options            string `json:"options,omitempty"`
	Version            string `json:"version"`
	Serial             string `json:"serial"`
	MaxRatedPowerWatt  uint32 `json:"max_rated_power_watt"`
	SupportsPowerLimit bool   `json:"supports_power_limit"`
}

// PowerLimit mirrors the writable subset of the Immediate Controls model
// (123): WMaxLimPct, WMaxLimPct_RvrtTms and WMaxLim_Ena.
type PowerLimit struct {
	Enabled           bool    `json:"enabled"`
	Percent           float64 `json:"percent"`
	RevertTimeSeconds uint32  `json:"revert_time_seconds"`
}

func Float(v float64) *float64 {
	return &v
}
