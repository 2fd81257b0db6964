package sunspec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleForKeepsPrecision(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(int16(-2), ScaleFor(2, maxUint16Point, 2.1), "small current keeps two decimals")
	assert.Equal(int16(-1), ScaleFor(1, maxUint16Point, 230.4), "mains voltage keeps one decimal")
	assert.Equal(int16(0), ScaleFor(0, maxInt16Point, 483.0), "watts fit at integer scale")
	assert.Equal(int16(-2), ScaleFor(2, maxUint16Point, 50.02), "frequency keeps two decimals")
}

func TestScaleForRaisesUntilFit(t *testing.T) {
	assert := assert.New(t)

	sf := ScaleFor(0, maxInt16Point, 250000)
	assert.Equal(int16(1), sf, "250 kW needs one decade")

	sf = ScaleFor(2, maxUint16Point, 7000000)
	assert.Equal(int16(3), sf, "seven megs needs three decades")
}

func TestEncodeUint16Clamps(t *testing.T) {
	assert := assert.New(t)

	raw, err := encodeUint16("A", 2.1, -2)
	assert.NoError(err)
	assert.Equal(uint16(210), raw)

	raw, err = encodeUint16("A", 700000, 0)
	var rangeErr *RangeError
	assert.ErrorAs(err, &rangeErr, "overflow reports the point")
	assert.Equal("A", rangeErr.Point)
	assert.Equal(uint16(maxUint16Point), raw, "clamped, not wrapped")

	raw, err = encodeUint16("A", -1, 0)
	assert.ErrorAs(err, &rangeErr)
	assert.Equal(uint16(0), raw)
}

func TestEncodeInt16Clamps(t *testing.T) {
	assert := assert.New(t)

	raw, err := encodeInt16("W", -483, 0)
	assert.NoError(err)
	assert.Equal(int16(-483), int16(raw))

	raw, err = encodeInt16("W", 40000, 0)
	var rangeErr *RangeError
	assert.ErrorAs(err, &rangeErr)
	assert.Equal(int16(maxInt16Point), int16(raw))

	raw, err = encodeInt16("W", -40000, 0)
	assert.ErrorAs(err, &rangeErr)
	assert.Equal(int16(minInt16Point), int16(raw))
}

func TestAcc32RoundTrip(t *testing.T) {
	assert := assert.New(t)

	hi, lo := encodeAcc32(123456789)
	assert.Equal(uint64(123456789), decodeAcc32(hi, lo))

	hi, lo = encodeAcc32(uint64(1) << 40)
	assert.Equal(uint64(0xFFFFFFFF), decodeAcc32(hi, lo), "saturates at 32 bits")
}

func TestStringPadding(t *testing.T) {
	assert := assert.New(t)

	words := EncodeString("EM24", 16)
	assert.Len(words, 16)
	assert.Equal("EM24", DecodeString(words))
	for _, w := range words[2:] {
		assert.Equal(uint16(0), w, "tail is null padded")
	}

	words = EncodeString("odd", 16)
	assert.Equal("odd", DecodeString(words), "odd length pads the low byte")

	words = EncodeString("0123456789ABCDEF_overflow", 8)
	assert.Len(words, 8)
	assert.Equal("0123456789ABCDEF", DecodeString(words), "overlong input truncates")
}

func TestSentinelDecodeToNil(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(decodeUint16(NotImplementedUint16, uint16(0)))
	assert.Nil(decodeUint16(100, NotImplementedSF), "missing scale factor hides the point")
	assert.Nil(decodeInt16(NotImplementedInt16, uint16(0)))

	v := decodeInt16(uint16(65326), uint16(0xFFFE)) // two's complement -210, SF -2
	assert.NotNil(v)
	assert.InDelta(-2.1, *v, 1e-9)
}

func TestDecodeErrorText(t *testing.T) {
	err := &DecodeError{Offset: 2, Reason: "common model id mismatch"}
	assert.Contains(t, err.Error(), "offset 2")

	var target *DecodeError
	assert.True(t, errors.As(err, &target))
}
