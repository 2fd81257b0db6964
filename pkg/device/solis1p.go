package device

import (
	"fmt"
	"math"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"

	"sunspecbridge/pkg/sunspec"
)

// Solis register map, input registers unless noted. Values are fixed-point
// counts; the scale lives in the decode step.
const (
	solisRegVersion     = 3000 // firmware version, hex
	solisRegActivePower = 3004 // u32 BE, W
	solisRegEnergyTotal = 3008 // u32 BE, kWh
	solisRegDCVoltage1  = 3021 // 0.1 V, MPPT 1
	solisRegDCCurrent1  = 3022 // 0.1 A, MPPT 1
	solisRegACVoltage   = 3035 // 0.1 V
	solisRegACCurrent   = 3036 // 0.1 A
	solisRegTemperature = 3041 // 0.1 degC
	solisRegFrequency   = 3042 // 0.01 Hz
	solisRegPowerLimit  = 3049 // holding register, percent * 100
	solisRegSerial      = 3060 // 4 words, nibble-reversed hex
)

const solisPowerLimitDisabled = 10000

// Solis1PDriver bridges a Solis S6 single-phase string inverter over RTU.
type Solis1PDriver struct {
	bus     *busClient
	logger  *zap.Logger
	maxWatt uint32
}

type solisPollRegisters struct {
	AC     []uint16 // 3035..3036
	Power  []uint16 // 3004..3005
	Energy []uint16 // 3008..3009
	DC     []uint16 // 3021..3022
	Temp   uint16   // 3041
	Freq   uint16   // 3042
}

func NewSolis1PDriver(cfg SerialConfig, maxRatedPowerWatt uint32, logger *zap.Logger, instrumentation *BusInstrument) (*Solis1PDriver, error) {
	logger = logger.With(zap.String("driver", DriverSolis1P))
	bus, err := newBusClient(cfg, logger, instrumentation)
	if err != nil {
		return nil, err
	}
	return &Solis1PDriver{
		bus:     bus,
		logger:  logger,
		maxWatt: maxRatedPowerWatt,
	}, nil
}

func (d *Solis1PDriver) Name() string {
	return DriverSolis1P
}

func (d *Solis1PDriver) Open() error {
	return d.bus.open()
}

func (d *Solis1PDriver) Close() error {
	return d.bus.close()
}

func (d *Solis1PDriver) Info() (*sunspec.DeviceInfo, error) {
	sregs, err := d.bus.readRegisters(solisRegSerial, 4, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, unreachable(err)
	}
	vreg, err := d.bus.readRegister(solisRegVersion, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, unreachable(err)
	}
	return &sunspec.DeviceInfo{
		Manufacturer:       "Solis",
		Model:              "Generic",
		Version:            fmt.Sprintf("%x", vreg),
		Serial:             solisSerialString(sregs),
		MaxRatedPowerWatt:  d.maxWatt,
		SupportsPowerLimit: true,
	}, nil
}

func (d *Solis1PDriver) Poll() (*sunspec.Measurements, error) {
	raw := solisPollRegisters{}
	var err error
	if raw.AC, err = d.bus.readRegisters(solisRegACVoltage, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Power, err = d.bus.readRegisters(solisRegActivePower, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Energy, err = d.bus.readRegisters(solisRegEnergyTotal, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.DC, err = d.bus.readRegisters(solisRegDCVoltage1, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Temp, err = d.bus.readRegister(solisRegTemperature, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Freq, err = d.bus.readRegister(solisRegFrequency, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	return decodeSolisPoll(raw), nil
}

func decodeSolisPoll(raw solisPollRegisters) *sunspec.Measurements {
	power := float64(u32BigEndian(raw.Power))
	dcVoltage := float64(raw.DC[0]) * 0.1
	dcCurrent := float64(raw.DC[1]) * 0.1

	state := sunspec.OperatingStateSleeping
	if power > 0 {
		state = sunspec.OperatingStateMPPT
	}

	return &sunspec.Measurements{
		ACVoltage:          float64(raw.AC[0]) * 0.1,
		ACCurrent:          float64(raw.AC[1]) * 0.1,
		FrequencyHz:        float64(raw.Freq) * 0.01,
		ActivePowerWatt:    power,
		DCVoltage:          sunspec.Float(dcVoltage),
		DCCurrent:          sunspec.Float(dcCurrent),
		DCPowerWatt:        sunspec.Float(dcVoltage * dcCurrent),
		CabinetTemperature: sunspec.Float(float64(int16(raw.Temp)) * 0.1),
		TotalEnergyWh:      uint64(u32BigEndian(raw.Energy)) * 1000,
		OperatingState:     state,
	}
}

// ApplyPowerLimit pushes the output limit as a holding-register write. The
// inverter takes a percent in hundredths; 10000 lifts the limit entirely.
func (d *Solis1PDriver) ApplyPowerLimit(limit sunspec.PowerLimit) error {
	value := uint16(solisPowerLimitDisabled)
	if limit.Enabled {
		value = uint16(math.Round(limit.Percent * 100))
	}
	if err := d.bus.writeRegister(solisRegPowerLimit, value); err != nil {
		return unreachable(err)
	}
	d.logger.Info("power limit applied",
		zap.Bool("enabled", limit.Enabled), zap.Float64("percent", limit.Percent))
	return nil
}

// solisSerialString decodes the serial registers the way the vendor tooling
// does: each word rendered as hex with its digits reversed.
func solisSerialString(words []uint16) string {
	out := make([]byte, 0, 4*len(words))
	for _, w := range words {
		hex := fmt.Sprintf("%x", w)
		for i := len(hex) - 1; i >= 0; i-- {
			out = append(out, hex[i])
		}
	}
	return string(out)
}
