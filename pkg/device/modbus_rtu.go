package device

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// SerialConfig describes the RTU side of the bridge. One serial line, one
// unit id, fixed framing for the process lifetime.
type SerialConfig struct {
	Device   string
	BaudRate uint
	DataBits uint
	Parity   string
	StopBits uint
	SlaveID  uint8
	Timeout  time.Duration
}

type busClient struct {
	client     *modbus.ModbusClient
	instrument []BusInstrument
}

type BusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func parityMode(parity string) (uint, error) {
	switch parity {
	case "", "none":
		return modbus.PARITY_NONE, nil
	case "even":
		return modbus.PARITY_EVEN, nil
	case "odd":
		return modbus.PARITY_ODD, nil
	default:
		return 0, fmt.Errorf("device: unknown parity %q", parity)
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *BusInstrument {
	return &BusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus rtu exchange",
				zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func newBusClient(cfg SerialConfig, logger *zap.Logger, instrumentation *BusInstrument) (*busClient, error) {
	par, err := parityMode(cfg.Parity)
	if err != nil {
		return nil, err
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", cfg.Device),
		Speed:    cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   par,
		StopBits: cfg.StopBits,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var inst []BusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("device", cfg.Device), zap.Uint8("unit", cfg.SlaveID)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if cfg.SlaveID > 0 {
		if err = client.SetUnitId(cfg.SlaveID); err != nil {
			return nil, err
		}
	}

	return &busClient{
		client:     client,
		instrument: inst,
	}, nil
}

func (bus *busClient) open() error {
	return bus.client.Open()
}

func (bus *busClient) close() error {
	return bus.client.Close()
}

func (bus *busClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer recordTimer("ReadRegisters", bus.instrument)()
	return bus.client.ReadRegisters(addr, quantity, regType)
}

func (bus *busClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer recordTimer("ReadRegister", bus.instrument)()
	return bus.client.ReadRegister(addr, regType)
}

func (bus *busClient) writeRegister(addr uint16, value uint16) error {
	defer recordTimer("WriteRegister", bus.instrument)()
	return bus.client.WriteRegister(addr, value)
}

func recordTimer(name string, instrument []BusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

// u32BigEndian assembles a 32-bit value from high-word-first registers.
func u32BigEndian(words []uint16) uint32 {
	return uint32(words[0])<<16 | uint32(words[1])
}

// i32LowWordFirst assembles a signed 32-bit value from low-word-first
// registers, the word order the EM24 uses.
func i32LowWordFirst(words []uint16) int32 {
	return int32(uint32(words[1])<<16 | uint32(words[0]))
}
