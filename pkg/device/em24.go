package device

import (
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"

	"sunspecbridge/pkg/sunspec"
)

// EM24 register map, input registers, int32 low-word-first unless noted.
const (
	em24RegVoltageL1    = 0x0000 // 0.1 V
	em24RegCurrentL1    = 0x000C // 0.001 A
	em24RegActivePower  = 0x0028 // 0.1 W, total
	em24RegFrequency    = 0x0037 // u16, 0.1 Hz
	em24RegEnergyImport = 0x003E // 0.1 kWh, total import
	em24RegSerial       = 0x1300 // 7 words, ASCII
)

// EM24Driver bridges a Carlo Gavazzi EM24 energy meter. The meter has no DC
// side and no power control, so those points surface as not-implemented.
type EM24Driver struct {
	bus    *busClient
	logger *zap.Logger
}

type em24PollRegisters struct {
	Voltage []uint16 // 0x0000..0x0001
	Current []uint16 // 0x000C..0x000D
	Power   []uint16 // 0x0028..0x0029
	Energy  []uint16 // 0x003E..0x003F
	Freq    uint16   // 0x0037
}

func NewEM24Driver(cfg SerialConfig, logger *zap.Logger, instrumentation *BusInstrument) (*EM24Driver, error) {
	logger = logger.With(zap.String("driver", DriverEM24))
	bus, err := newBusClient(cfg, logger, instrumentation)
	if err != nil {
		return nil, err
	}
	return &EM24Driver{
		bus:    bus,
		logger: logger,
	}, nil
}

func (d *EM24Driver) Name() string {
	return DriverEM24
}

func (d *EM24Driver) Open() error {
	return d.bus.open()
}

func (d *EM24Driver) Close() error {
	return d.bus.close()
}

func (d *EM24Driver) Info() (*sunspec.DeviceInfo, error) {
	sregs, err := d.bus.readRegisters(em24RegSerial, 7, modbus.INPUT_REGISTER)
	if err != nil {
		return nil, unreachable(err)
	}
	return &sunspec.DeviceInfo{
		Manufacturer: "Carlo Gavazzi",
		Model:        "EM24",
		Version:      "-",
		Serial:       sunspec.DecodeString(sregs),
	}, nil
}

func (d *EM24Driver) Poll() (*sunspec.Measurements, error) {
	raw := em24PollRegisters{}
	var err error
	if raw.Voltage, err = d.bus.readRegisters(em24RegVoltageL1, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Current, err = d.bus.readRegisters(em24RegCurrentL1, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Power, err = d.bus.readRegisters(em24RegActivePower, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Energy, err = d.bus.readRegisters(em24RegEnergyImport, 2, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	if raw.Freq, err = d.bus.readRegister(em24RegFrequency, modbus.INPUT_REGISTER); err != nil {
		return nil, unreachable(err)
	}
	return decodeEM24Poll(raw), nil
}

func decodeEM24Poll(raw em24PollRegisters) *sunspec.Measurements {
	power := float64(i32LowWordFirst(raw.Power)) * 0.1

	state := sunspec.OperatingStateSleeping
	if power > 0 {
		state = sunspec.OperatingStateMPPT
	}

	energy := i32LowWordFirst(raw.Energy)
	if energy < 0 {
		energy = 0
	}

	return &sunspec.Measurements{
		ACVoltage:       float64(i32LowWordFirst(raw.Voltage)) * 0.1,
		ACCurrent:       float64(i32LowWordFirst(raw.Current)) * 0.001,
		FrequencyHz:     float64(raw.Freq) * 0.1,
		ActivePowerWatt: power,
		TotalEnergyWh:   uint64(energy) * 100,
		OperatingState:  state,
	}
}

func (d *EM24Driver) ApplyPowerLimit(limit sunspec.PowerLimit) error {
	return ErrNotSupported
}
