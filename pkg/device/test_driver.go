package device

import (
	"fmt"
	"sync"
	"time"

	"sunspecbridge/pkg/sunspec"
)

// TestDriver is a bus-free driver used by the demo mode and by tests. It
// cycles the AC voltage through a short script and can be told to fail the
// next N polls to exercise the backoff path.
type TestDriver struct {
	mu       sync.Mutex
	opened   bool
	info     sunspec.DeviceInfo
	base     sunspec.Measurements
	polls    int
	failNext int
	applied  []sunspec.PowerLimit
}

var demoVoltages = []float64{230.0, 231.0, 232.0}

func NewTestDriver() *TestDriver {
	return &TestDriver{
		info: sunspec.DeviceInfo{
			Manufacturer:       "Demo",
			Model:              "Generic",
			Version:            "0.1",
			Serial:             "DEADBEEF",
			MaxRatedPowerWatt:  3000,
			SupportsPowerLimit: true,
		},
		base: sunspec.Measurements{
			ACCurrent:      1.0,
			FrequencyHz:    50.0,
			TotalEnergyWh:  12000,
			OperatingState: sunspec.OperatingStateMPPT,
		},
	}
}

func (d *TestDriver) Name() string {
	return DriverDemo
}

func (d *TestDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return nil
}

func (d *TestDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *TestDriver) Info() (*sunspec.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return nil, fmt.Errorf("%w: scripted failure", ErrUnreachable)
	}
	info := d.info
	return &info, nil
}

func (d *TestDriver) Poll() (*sunspec.Measurements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return nil, fmt.Errorf("%w: scripted failure", ErrUnreachable)
	}
	m := d.base
	m.ACVoltage = demoVoltages[d.polls%len(demoVoltages)]
	m.ActivePowerWatt = m.ACVoltage * m.ACCurrent
	m.AcquiredAt = time.Now()
	d.polls++
	return &m, nil
}

func (d *TestDriver) ApplyPowerLimit(limit sunspec.PowerLimit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return fmt.Errorf("%w: scripted failure", ErrUnreachable)
	}
	d.applied = append(d.applied, limit)
	return nil
}

// SetMeasurements replaces the scripted base values.
func (d *TestDriver) SetMeasurements(m sunspec.Measurements) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = m
}

// FailNext makes the next n operations fail as unreachable.
func (d *TestDriver) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

func (d *TestDriver) PollCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

func (d *TestDriver) AppliedLimits() []sunspec.PowerLimit {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sunspec.PowerLimit, len(d.applied))
	copy(out, d.applied)
	return out
}

func (d *TestDriver) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}
