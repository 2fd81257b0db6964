package device

import (
	"errors"

	"sunspecbridge/pkg/sunspec"
)

// Driver variant names accepted by the `device.driver` config key.
const (
	DriverSolis1P = "solis1p"
	DriverEM24    = "em24"
	DriverDemo    = "demo"
)

// ErrUnreachable wraps any bus-level failure of one poll exchange: timeout,
// CRC error or a device exception response. The poll loop retries with
// backoff and keeps the last-known-good snapshot.
var ErrUnreachable = errors.New("device: unreachable")

// ErrNotSupported is returned by control operations a device variant cannot
// perform.
var ErrNotSupported = errors.New("device: operation not supported")

// Driver translates one vendor's RTU register layout into canonical
// measurements. Exactly one variant is active for the process lifetime; it
// owns the serial-bus contract (unit id, register ranges, word order,
// per-field scaling).
type Driver interface {
	Name() string
	Open() error
	Close() error
	Info() (*sunspec.DeviceInfo, error)
	Poll() (*sunspec.Measurements, error)
	ApplyPowerLimit(limit sunspec.PowerLimit) error
}

func unreachable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrUnreachable, err)
}
