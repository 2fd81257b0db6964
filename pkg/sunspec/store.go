package sunspec

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrOutOfRange   = errors.New("sunspec: register range outside model")
	ErrReadOnly     = errors.New("sunspec: write to read-only point")
	ErrInvalidValue = errors.New("sunspec: value not accepted")
)

// Snapshot pairs one canonical measurement set with its encoded register
// image. Both are immutable once the snapshot is published.
type Snapshot struct {
	Measurements *Measurements
	Image        []uint16
	BuiltAt      time.Time
}

// Store holds the current snapshot. The poll loop is the single measurement
// writer; the serve loop and the HTTP surface only load the atomic pointer,
// so a reader always sees a whole snapshot and never a mix of two polls.
// Rebuilds happen off to the side and are installed with one pointer swap.
type Store struct {
	mu         sync.Mutex // serializes rebuilds (poll updates, control writes)
	current    atomic.Pointer[Snapshot]
	info       DeviceInfo
	address    uint16
	last       *Measurements
	limit      PowerLimit
	limitDirty bool
}

func NewStore(info DeviceInfo, deviceAddress uint16) *Store {
	s := &Store{
		info:    info,
		address: deviceAddress,
		limit:   PowerLimit{Percent: 100},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.rebuildLocked()
	return s
}

func (s *Store) rebuildLocked() error {
	img, err := BuildImage(&s.info, s.address, s.last, s.limit)
	s.current.Store(&Snapshot{
		Measurements: s.last,
		Image:        img,
		BuiltAt:      time.Now(),
	})
	return err
}

// Update installs a new canonical snapshot. The returned error only carries
// clamped-point range reports; the snapshot is installed regardless.
func (s *Store) Update(m *Measurements) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = m
	return s.rebuildLocked()
}

// SetDeviceInfo replaces the Common-model identity, keeping measurements.
func (s *Store) SetDeviceInfo(info DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	return s.rebuildLocked()
}

func (s *Store) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Current returns the live snapshot. Callers must not mutate the image.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Measurements returns the last acquired snapshot, or false if no poll has
// succeeded since startup.
func (s *Store) Measurements() (*Measurements, bool) {
	snap := s.current.Load()
	return snap.Measurements, snap.Measurements != nil
}

// LastUpdate reports the acquisition time of the served snapshot, zero when
// nothing has been acquired yet.
func (s *Store) LastUpdate() time.Time {
	snap := s.current.Load()
	if snap.Measurements == nil {
		return time.Time{}
	}
	return snap.Measurements.AcquiredAt
}

func (s *Store) PowerLimit() PowerLimit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// TakePowerLimitChange hands the poll loop a pending control write, at most
// once per write, so the limit is pushed to the device exactly when a client
// changed it.
func (s *Store) TakePowerLimitChange() (PowerLimit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.limitDirty {
		return PowerLimit{}, false
	}
	s.limitDirty = false
	return s.limit, true
}

// ReadRange copies the requested register sub-range out of one snapshot.
func (s *Store) ReadRange(addr uint16, quantity uint16) ([]uint16, error) {
	if quantity == 0 {
		return nil, ErrOutOfRange
	}
	first := int(addr)
	last := first + int(quantity)
	if first < int(BaseAddress) || last > int(BaseAddress)+int(ImageSize) {
		return nil, ErrOutOfRange
	}
	img := s.current.Load().Image
	out := make([]uint16, quantity)
	copy(out, img[first-int(BaseAddress):last-int(BaseAddress)])
	return out, nil
}

// WriteRange applies a client register write. Only the power-limit points of
// the Immediate Controls model are writable; window/ramp words inside the
// block are accepted and ignored, anything else is rejected before any state
// changes.
func (s *Store) WriteRange(addr uint16, values []uint16) error {
	if len(values) == 0 {
		return ErrOutOfRange
	}
	first := int(addr)
	last := first + len(values) - 1
	if first < int(BaseAddress) || last >= int(BaseAddress)+int(ImageSize) {
		return ErrOutOfRange
	}
	if first < int(regWMaxLimPct) || last > int(regWMaxLimEna) {
		return ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.limit
	for i, v := range values {
		switch uint16(first + i) {
		case regWMaxLimPct:
			if v > 100 {
				return ErrInvalidValue
			}
			limit.Percent = float64(v)
		case regWMaxLimPctRvrtTms:
			limit.RevertTimeSeconds = uint32(v)
		case regWMaxLimEna:
			if v > 1 {
				return ErrInvalidValue
			}
			limit.Enabled = v == 1
		case regWMaxLimPctWinTms, regWMaxLimPctRmpTms:
			// accepted, not supported by the bridged devices
		}
	}
	s.limit = limit
	s.limitDirty = true
	return s.rebuildLocked()
}
