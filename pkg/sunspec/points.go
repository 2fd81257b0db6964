package sunspec

import (
	"fmt"
	"math"
)

// Not-implemented sentinels per SunSpec 2017 point type conventions.
const (
	NotImplementedUint16 uint16 = 0xFFFF
	NotImplementedInt16  uint16 = 0x8000
	NotImplementedEnum16 uint16 = 0xFFFF
	NotImplementedSF     uint16 = 0x8000
)

// Widest representable values once the sentinel is reserved.
const (
	maxUint16Point = 0xFFFE
	maxInt16Point  = 0x7FFF
	minInt16Point  = -0x7FFF
)

// DecodeError reports a malformed raw register buffer, from either bus.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sunspec: decode error at offset %d: %s", e.Offset, e.Reason)
}

// RangeError reports a value that does not fit its point width even after
// scale-factor adjustment. The encoder clamps instead of wrapping.
type RangeError struct {
	Point string
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("sunspec: value %g out of range for point %s", e.Value, e.Point)
}

func pow10(sf int16) float64 {
	return math.Pow(10, float64(sf))
}

// ScaleFor picks the scale factor for a group of points sharing one SF
// register: the lowest SF that keeps `precision` decimals, raised until the
// largest magnitude in the group fits within `limit` counts.
func ScaleFor(precision int, limit float64, values ...float64) int16 {
	sf := int16(-precision)
	var mag float64
	for _, v := range values {
		mag = math.Max(mag, math.Abs(v))
	}
	for sf < 10 && mag/pow10(sf) > limit {
		sf++
	}
	return sf
}

func encodeUint16(point string, value float64, sf int16) (uint16, error) {
	scaled := math.Round(value / pow10(sf))
	if scaled < 0 {
		return 0, &RangeError{Point: point, Value: value}
	}
	if scaled > maxUint16Point {
		return maxUint16Point, &RangeError{Point: point, Value: value}
	}
	return uint16(scaled), nil
}

func encodeInt16(point string, value float64, sf int16) (uint16, error) {
	scaled := math.Round(value / pow10(sf))
	if scaled > maxInt16Point {
		return uint16(maxInt16Point), &RangeError{Point: point, Value: value}
	}
	if scaled < minInt16Point {
		clamped := int16(minInt16Point)
		return uint16(clamped), &RangeError{Point: point, Value: value}
	}
	return uint16(int16(scaled)), nil
}

func encodeSF(sf int16) uint16 {
	return uint16(sf)
}

func encodeAcc32(value uint64) (uint16, uint16) {
	if value > math.MaxUint32 {
		value = math.MaxUint32
	}
	return uint16(value >> 16), uint16(value & 0xFFFF)
}

func decodeAcc32(hi, lo uint16) uint64 {
	return uint64(hi)<<16 | uint64(lo)
}

// ApplySF converts a raw unsigned register count to its true value.
func ApplySF(raw uint16, sf int16) float64 {
	return float64(raw) * pow10(sf)
}

// ApplySFInt16 converts a raw signed register count to its true value.
func ApplySFInt16(raw uint16, sf int16) float64 {
	return float64(int16(raw)) * pow10(sf)
}

func decodeUint16(raw, sfRaw uint16) *float64 {
	if raw == NotImplementedUint16 || sfRaw == NotImplementedSF {
		return nil
	}
	v := ApplySF(raw, int16(sfRaw))
	return &v
}

func decodeInt16(raw, sfRaw uint16) *float64 {
	if raw == NotImplementedInt16 || sfRaw == NotImplementedSF {
		return nil
	}
	v := ApplySFInt16(raw, int16(sfRaw))
	return &v
}

// EncodeString packs an ASCII string into `words` registers, two characters
// per register, right-padded with null words. Overlong input is truncated to
// the field width.
func EncodeString(s string, words int) []uint16 {
	bytes := []byte(s)
	if len(bytes) > 2*words {
		bytes = bytes[:2*words]
	}
	out := make([]uint16, words)
	for i, b := range bytes {
		if i%2 == 0 {
			out[i/2] = uint16(b) << 8
		} else {
			out[i/2] |= uint16(b)
		}
	}
	return out
}

// DecodeString is the inverse of EncodeString, stopping at the first null.
func DecodeString(words []uint16) string {
	bytes := make([]byte, 0, 2*len(words))
	for _, w := range words {
		bytes = append(bytes, byte(w>>8), byte(w&0xFF))
	}
	for i, b := range bytes {
		if b == 0 {
			return string(bytes[:i])
		}
	}
	return string(bytes)
}
