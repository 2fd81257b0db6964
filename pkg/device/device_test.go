package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sunspecbridge/pkg/sunspec"
)

func TestDecodeSolisPoll(t *testing.T) {
	assert := assert.New(t)

	m := decodeSolisPoll(solisPollRegisters{
		AC:     []uint16{2304, 21},   // 230.4 V, 2.1 A
		Power:  []uint16{0, 483},     // 483 W
		Energy: []uint16{0, 1234},    // 1234 kWh
		DC:     []uint16{3105, 16},   // 310.5 V, 1.6 A
		Temp:   413,                  // 41.3 degC
		Freq:   5002,                 // 50.02 Hz
	})

	assert.InDelta(230.4, m.ACVoltage, 0.001)
	assert.InDelta(2.1, m.ACCurrent, 0.001)
	assert.InDelta(50.02, m.FrequencyHz, 0.001)
	assert.InDelta(483, m.ActivePowerWatt, 0.001)
	assert.InDelta(310.5, *m.DCVoltage, 0.001)
	assert.InDelta(1.6, *m.DCCurrent, 0.001)
	assert.InDelta(496.8, *m.DCPowerWatt, 0.001)
	assert.InDelta(41.3, *m.CabinetTemperature, 0.001)
	assert.Equal(uint64(1234000), m.TotalEnergyWh, "kWh counter scaled to Wh")
	assert.Equal(sunspec.OperatingStateMPPT, m.OperatingState)
}

func TestDecodeSolisPollSleeping(t *testing.T) {
	assert := assert.New(t)

	m := decodeSolisPoll(solisPollRegisters{
		AC:     []uint16{2301, 0},
		Power:  []uint16{0, 0},
		Energy: []uint16{0, 1234},
		DC:     []uint16{0, 0},
		Freq:   5000,
	})

	assert.Equal(sunspec.OperatingStateSleeping, m.OperatingState, "no production means sleeping")
	assert.InDelta(0, m.ActivePowerWatt, 0.001)
}

func TestDecodeSolisPollHighPower(t *testing.T) {
	// power crosses the 16-bit boundary, hi word in use
	m := decodeSolisPoll(solisPollRegisters{
		AC:     []uint16{2304, 300},
		Power:  []uint16{1, 4464}, // 65536 + 4464 = 70000 W
		Energy: []uint16{1, 0},    // 65536 kWh
		DC:     []uint16{0, 0},
		Freq:   5000,
	})

	assert.InDelta(t, 70000, m.ActivePowerWatt, 0.001)
	assert.Equal(t, uint64(65536000), m.TotalEnergyWh)
}

func TestSolisSerialString(t *testing.T) {
	assert := assert.New(t)

	// each word rendered as hex, digits reversed
	assert.Equal("1a2", solisSerialString([]uint16{0x2A1}))
	assert.Equal("cbafed", solisSerialString([]uint16{0xABC, 0xDEF}))
}

func TestDecodeEM24Poll(t *testing.T) {
	assert := assert.New(t)

	m := decodeEM24Poll(em24PollRegisters{
		Voltage: []uint16{2304, 0},  // 230.4 V
		Current: []uint16{2100, 0},  // 2.100 A
		Power:   []uint16{4830, 0},  // 483.0 W
		Energy:  []uint16{9900, 0},  // 990.0 kWh
		Freq:    500,                // 50.0 Hz
	})

	assert.InDelta(230.4, m.ACVoltage, 0.001)
	assert.InDelta(2.1, m.ACCurrent, 0.001)
	assert.InDelta(50.0, m.FrequencyHz, 0.001)
	assert.InDelta(483.0, m.ActivePowerWatt, 0.001)
	assert.Equal(uint64(990000), m.TotalEnergyWh)
	assert.Equal(sunspec.OperatingStateMPPT, m.OperatingState)
	assert.Nil(m.DCVoltage, "meter has no DC side")
	assert.Nil(m.DCCurrent)
	assert.Nil(m.DCPowerWatt)
	assert.Nil(m.CabinetTemperature)
}

func TestDecodeEM24PollNegativePower(t *testing.T) {
	assert := assert.New(t)

	// -100.0 W, low word first
	m := decodeEM24Poll(em24PollRegisters{
		Voltage: []uint16{2304, 0},
		Current: []uint16{450, 0},
		Power:   []uint16{0xFC18, 0xFFFF},
		Energy:  []uint16{9900, 0},
		Freq:    500,
	})

	assert.InDelta(-100.0, m.ActivePowerWatt, 0.001)
	assert.Equal(sunspec.OperatingStateSleeping, m.OperatingState)
}

func TestWordOrderHelpers(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(70000), u32BigEndian([]uint16{1, 4464}))
	assert.Equal(int32(70000), i32LowWordFirst([]uint16{4464, 1}))
	assert.Equal(int32(-1), i32LowWordFirst([]uint16{0xFFFF, 0xFFFF}))
}

func TestParityMode(t *testing.T) {
	assert := assert.New(t)

	for _, name := range []string{"", "none", "even", "odd"} {
		_, err := parityMode(name)
		assert.NoError(err, name)
	}
	_, err := parityMode("mark")
	assert.Error(err)
}

func TestTestDriverScript(t *testing.T) {
	assert := assert.New(t)

	drv := NewTestDriver()
	assert.NoError(drv.Open())
	assert.True(drv.Opened())

	info, err := drv.Info()
	assert.NoError(err)
	assert.Equal("Demo", info.Manufacturer)
	assert.Equal("DEADBEEF", info.Serial)

	m1, err := drv.Poll()
	assert.NoError(err)
	m2, err := drv.Poll()
	assert.NoError(err)
	assert.NotEqual(m1.ACVoltage, m2.ACVoltage, "voltage cycles between polls")
	assert.InDelta(m2.ACVoltage*m2.ACCurrent, m2.ActivePowerWatt, 0.001)
	assert.Equal(2, drv.PollCount())

	assert.NoError(drv.ApplyPowerLimit(sunspec.PowerLimit{Enabled: true, Percent: 50}))
	applied := drv.AppliedLimits()
	assert.Len(applied, 1)
	assert.InDelta(50, applied[0].Percent, 0.001)

	assert.NoError(drv.Close())
	assert.False(drv.Opened())
}

func TestTestDriverFailureInjection(t *testing.T) {
	assert := assert.New(t)

	drv := NewTestDriver()
	drv.FailNext(2)

	_, err := drv.Poll()
	assert.ErrorIs(err, ErrUnreachable)
	_, err = drv.Poll()
	assert.ErrorIs(err, ErrUnreachable)

	m, err := drv.Poll()
	assert.NoError(err, "recovers after the scripted failures")
	assert.NotNil(m)
}

func TestEM24PowerLimitUnsupported(t *testing.T) {
	d := &EM24Driver{}
	assert.True(t, errors.Is(d.ApplyPowerLimit(sunspec.PowerLimit{Enabled: true, Percent: 50}), ErrNotSupported))
}
