package sunspec

import (
	"errors"
)

// Register layout of the served model chain. Addresses are absolute protocol
// addresses, base 40000, matching the SunSpec 2017 register convention:
// marker, Common (1), Single Phase Inverter (101), Nameplate (120),
// Immediate Controls (123), end marker.
const (
	BaseAddress uint16 = 40000
	ImageSize   uint16 = 178

	markerHi uint16 = 0x5375 // "Su"
	markerLo uint16 = 0x6e53 // "nS"

	regCommonModelID  uint16 = 40002
	regCommonModelLen uint16 = 40003
	regManufacturer   uint16 = 40004 // 16 words
	regModel          uint16 = 40020 // 16 words
	regOptions        uint16 = 40036 // 8 words
	regVersion        uint16 = 40044 // 8 words
	regSerial         uint16 = 40052 // 16 words
	regDeviceAddress  uint16 = 40068

	regInverterModelID  uint16 = 40070
	regInverterModelLen uint16 = 40071
	regAmps             uint16 = 40072
	regAmpsPhaseA       uint16 = 40073
	regAmpsPhaseB       uint16 = 40074
	regAmpsPhaseC       uint16 = 40075
	regAmpsSF           uint16 = 40076
	regVoltsAB          uint16 = 40077
	regVoltsBC          uint16 = 40078
	regVoltsCA          uint16 = 40079
	regVoltsAN          uint16 = 40080
	regVoltsBN          uint16 = 40081
	regVoltsCN          uint16 = 40082
	regVoltsSF          uint16 = 40083
	regWatts            uint16 = 40084
	regWattsSF          uint16 = 40085
	regHz               uint16 = 40086
	regHzSF             uint16 = 40087
	regVA               uint16 = 40088
	regVASF             uint16 = 40089
	regVAr              uint16 = 40090
	regVArSF            uint16 = 40091
	regPF               uint16 = 40092
	regPFSF             uint16 = 40093
	regWattHours        uint16 = 40094 // acc32, 2 words
	regWattHoursSF      uint16 = 40096
	regDCAmps           uint16 = 40097
	regDCAmpsSF         uint16 = 40098
	regDCVolts          uint16 = 40099
	regDCVoltsSF        uint16 = 40100
	regDCWatts          uint16 = 40101
	regDCWattsSF        uint16 = 40102
	regTempCabinet      uint16 = 40103
	regTempSF           uint16 = 40107
	regOperatingState   uint16 = 40108
	regEvent1           uint16 = 40110 // bitfield32, 2 words
	regEvent2           uint16 = 40112
	regEventVnd         uint16 = 40114 // 4 bitfield32 points, 8 words

	regNameplateModelID  uint16 = 40122
	regNameplateModelLen uint16 = 40123
	regDERType           uint16 = 40124
	regWattRating        uint16 = 40125
	regWattRatingSF      uint16 = 40126

	regControlsModelID   uint16 = 40150
	regControlsModelLen  uint16 = 40151
	regWMaxLimPct        uint16 = 40155
	regWMaxLimPctWinTms  uint16 = 40156
	regWMaxLimPctRvrtTms uint16 = 40157
	regWMaxLimPctRmpTms  uint16 = 40158
	regWMaxLimEna        uint16 = 40159
	regWMaxLimPctSF      uint16 = 40173

	regEndModelID  uint16 = 40176
	regEndModelLen uint16 = 40177
)

const (
	commonModelID     = 1
	commonModelLen    = 66
	inverterModelID   = 101
	inverterModelLen  = 50
	nameplateModelID  = 120
	nameplateModelLen = 26
	controlsModelID   = 123
	controlsModelLen  = 24
	derTypePV         = 4
)

func idx(addr uint16) int {
	return int(addr - BaseAddress)
}

// BuildImage encodes one canonical snapshot into the full register image.
// Pure: the same inputs always produce the same words. A nil Measurements
// builds the "not yet acquired" image, with every measurement point at its
// not-implemented sentinel so clients can tell it apart from valid zeros.
// Out-of-width values are clamped and reported through the joined error;
// the returned image is valid either way.
func BuildImage(info *DeviceInfo, deviceAddress uint16, m *Measurements, limit PowerLimit) ([]uint16, error) {
	img := make([]uint16, ImageSize)
	for i := range img {
		img[i] = NotImplementedUint16
	}
	var errs []error
	setU16 := func(addr uint16, point string, value float64, sf int16) {
		raw, err := encodeUint16(point, value, sf)
		if err != nil {
			errs = append(errs, err)
		}
		img[idx(addr)] = raw
	}
	setI16 := func(addr uint16, point string, value float64, sf int16) {
		raw, err := encodeInt16(point, value, sf)
		if err != nil {
			errs = append(errs, err)
		}
		img[idx(addr)] = raw
	}
	setString := func(addr uint16, s string, words int) {
		copy(img[idx(addr):], EncodeString(s, words))
	}

	img[idx(BaseAddress)] = markerHi
	img[idx(BaseAddress+1)] = markerLo

	// Common model
	img[idx(regCommonModelID)] = commonModelID
	img[idx(regCommonModelLen)] = commonModelLen
	setString(regManufacturer, info.Manufacturer, 16)
	setString(regModel, info.Model, 16)
	setString(regOptions, info.Options, 8)
	setString(regVersion, info.Version, 8)
	setString(regSerial, info.Serial, 16)
	img[idx(regDeviceAddress)] = deviceAddress

	// Inverter model
	img[idx(regInverterModelID)] = inverterModelID
	img[idx(regInverterModelLen)] = inverterModelLen
	img[idx(regEvent1)] = 0
	img[idx(regEvent1+1)] = 0
	img[idx(regEvent2)] = 0
	img[idx(regEvent2+1)] = 0
	for i := uint16(0); i < 8; i++ {
		img[idx(regEventVnd+i)] = 0
	}

	// Signed points and scale factors have their own sentinel; the 0xFFFF
	// fill above only covers the unsigned ones.
	for _, r := range []uint16{regAmpsSF, regVoltsSF, regWattsSF, regHzSF, regVASF,
		regVArSF, regPFSF, regDCAmpsSF, regDCVoltsSF, regDCWattsSF, regTempSF, regWattRatingSF} {
		img[idx(r)] = NotImplementedSF
	}
	for _, r := range []uint16{regWatts, regVA, regVAr, regPF, regDCWatts,
		regTempCabinet, regTempCabinet + 1, regTempCabinet + 2, regTempCabinet + 3} {
		img[idx(r)] = NotImplementedInt16
	}

	if m != nil {
		ampsSF := ScaleFor(2, maxUint16Point, m.ACCurrent)
		setU16(regAmps, "A", m.ACCurrent, ampsSF)
		setU16(regAmpsPhaseA, "AphA", m.ACCurrent, ampsSF)
		img[idx(regAmpsSF)] = encodeSF(ampsSF)

		voltsSF := ScaleFor(1, maxUint16Point, m.ACVoltage)
		setU16(regVoltsAN, "PhVphA", m.ACVoltage, voltsSF)
		img[idx(regVoltsSF)] = encodeSF(voltsSF)

		wattsSF := ScaleFor(0, maxInt16Point, m.ActivePowerWatt)
		setI16(regWatts, "W", m.ActivePowerWatt, wattsSF)
		img[idx(regWattsSF)] = encodeSF(wattsSF)

		hzSF := ScaleFor(2, maxUint16Point, m.FrequencyHz)
		setU16(regHz, "Hz", m.FrequencyHz, hzSF)
		img[idx(regHzSF)] = encodeSF(hzSF)

		if m.ApparentPowerVA != nil {
			vaSF := ScaleFor(0, maxInt16Point, *m.ApparentPowerVA)
			setI16(regVA, "VA", *m.ApparentPowerVA, vaSF)
			img[idx(regVASF)] = encodeSF(vaSF)
		}
		if m.ReactivePowerVA != nil {
			varSF := ScaleFor(0, maxInt16Point, *m.ReactivePowerVA)
			setI16(regVAr, "VAr", *m.ReactivePowerVA, varSF)
			img[idx(regVArSF)] = encodeSF(varSF)
		}

		img[idx(regWattHours)], img[idx(regWattHours+1)] = encodeAcc32(m.TotalEnergyWh)
		img[idx(regWattHoursSF)] = encodeSF(0)

		if m.DCCurrent != nil {
			sf := ScaleFor(2, maxUint16Point, *m.DCCurrent)
			setU16(regDCAmps, "DCA", *m.DCCurrent, sf)
			img[idx(regDCAmpsSF)] = encodeSF(sf)
		}
		if m.DCVoltage != nil {
			sf := ScaleFor(1, maxUint16Point, *m.DCVoltage)
			setU16(regDCVolts, "DCV", *m.DCVoltage, sf)
			img[idx(regDCVoltsSF)] = encodeSF(sf)
		}
		if m.DCPowerWatt != nil {
			sf := ScaleFor(0, maxInt16Point, *m.DCPowerWatt)
			setI16(regDCWatts, "DCW", *m.DCPowerWatt, sf)
			img[idx(regDCWattsSF)] = encodeSF(sf)
		}
		if m.CabinetTemperature != nil {
			sf := ScaleFor(1, maxInt16Point, *m.CabinetTemperature)
			setI16(regTempCabinet, "TmpCab", *m.CabinetTemperature, sf)
			img[idx(regTempSF)] = encodeSF(sf)
		}

		img[idx(regOperatingState)] = m.OperatingState
	} else {
		img[idx(regWattHours)], img[idx(regWattHours+1)] = encodeAcc32(0)
		img[idx(regWattHoursSF)] = encodeSF(0)
	}

	// Nameplate model
	img[idx(regNameplateModelID)] = nameplateModelID
	img[idx(regNameplateModelLen)] = nameplateModelLen
	img[idx(regDERType)] = derTypePV
	if info.MaxRatedPowerWatt > 0 {
		sf := ScaleFor(0, maxUint16Point, float64(info.MaxRatedPowerWatt))
		setU16(regWattRating, "WRtg", float64(info.MaxRatedPowerWatt), sf)
		img[idx(regWattRatingSF)] = encodeSF(sf)
	}

	// Immediate controls model. WMaxLimPct_SF is fixed at 0: the limit is
	// written and served as an integer percent, as the bridged devices only
	// accept whole-percent limits anyway.
	img[idx(regControlsModelID)] = controlsModelID
	img[idx(regControlsModelLen)] = controlsModelLen
	setU16(regWMaxLimPct, "WMaxLimPct", limit.Percent, 0)
	img[idx(regWMaxLimPctRvrtTms)] = uint16(limit.RevertTimeSeconds)
	if limit.Enabled {
		img[idx(regWMaxLimEna)] = 1
	} else {
		img[idx(regWMaxLimEna)] = 0
	}
	img[idx(regWMaxLimPctSF)] = encodeSF(0)

	img[idx(regEndModelID)] = 0xFFFF
	img[idx(regEndModelLen)] = 0

	return img, errors.Join(errs...)
}

// DecodedModel is the diagnostic view of a register image. Points at their
// not-implemented sentinel decode to nil.
type DecodedModel struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Options      string `json:"options,omitempty"`
	Version      string `json:"version"`
	Serial       string `json:"serial"`

	DeviceAddress uint16 `json:"device_address"`

	ACCurrent          *float64 `json:"ac_current,omitempty"`
	ACVoltage          *float64 `json:"ac_voltage,omitempty"`
	ActivePowerWatt    *float64 `json:"active_power_watt,omitempty"`
	FrequencyHz        *float64 `json:"frequency_hz,omitempty"`
	ApparentPowerVA    *float64 `json:"apparent_power_va,omitempty"`
	ReactivePowerVA    *float64 `json:"reactive_power_var,omitempty"`
	TotalEnergyWh      uint64   `json:"total_energy_wh"`
	DCCurrent          *float64 `json:"dc_current,omitempty"`
	DCVoltage          *float64 `json:"dc_voltage,omitempty"`
	DCPowerWatt        *float64 `json:"dc_power_watt,omitempty"`
	CabinetTemperature *float64 `json:"cabinet_temperature,omitempty"`
	OperatingState     *uint16  `json:"operating_state,omitempty"`
	MaxRatedPowerWatt  *float64 `json:"max_rated_power_watt,omitempty"`

	PowerLimit PowerLimit `json:"power_limit"`
}

// DecodeImage reverses BuildImage. It exists for diagnostics and tests; the
// serve path never decodes.
func DecodeImage(img []uint16) (*DecodedModel, error) {
	if len(img) < int(ImageSize) {
		return nil, &DecodeError{Offset: len(img), Reason: "image shorter than model chain"}
	}
	if img[idx(BaseAddress)] != markerHi || img[idx(BaseAddress+1)] != markerLo {
		return nil, &DecodeError{Offset: 0, Reason: "missing SunS marker"}
	}
	if img[idx(regCommonModelID)] != commonModelID {
		return nil, &DecodeError{Offset: idx(regCommonModelID), Reason: "common model id mismatch"}
	}
	if img[idx(regInverterModelID)] != inverterModelID {
		return nil, &DecodeError{Offset: idx(regInverterModelID), Reason: "inverter model id mismatch"}
	}

	d := &DecodedModel{
		Manufacturer:  DecodeString(img[idx(regManufacturer):idx(regManufacturer)+16]),
		Model:         DecodeString(img[idx(regModel):idx(regModel)+16]),
		Options:       DecodeString(img[idx(regOptions):idx(regOptions)+8]),
		Version:       DecodeString(img[idx(regVersion):idx(regVersion)+8]),
		Serial:        DecodeString(img[idx(regSerial):idx(regSerial)+16]),
		DeviceAddress: img[idx(regDeviceAddress)],
	}

	d.ACCurrent = decodeUint16(img[idx(regAmps)], img[idx(regAmpsSF)])
	d.ACVoltage = decodeUint16(img[idx(regVoltsAN)], img[idx(regVoltsSF)])
	d.ActivePowerWatt = decodeInt16(img[idx(regWatts)], img[idx(regWattsSF)])
	d.FrequencyHz = decodeUint16(img[idx(regHz)], img[idx(regHzSF)])
	d.ApparentPowerVA = decodeInt16(img[idx(regVA)], img[idx(regVASF)])
	d.ReactivePowerVA = decodeInt16(img[idx(regVAr)], img[idx(regVArSF)])
	d.TotalEnergyWh = decodeAcc32(img[idx(regWattHours)], img[idx(regWattHours+1)])
	d.DCCurrent = decodeUint16(img[idx(regDCAmps)], img[idx(regDCAmpsSF)])
	d.DCVoltage = decodeUint16(img[idx(regDCVolts)], img[idx(regDCVoltsSF)])
	d.DCPowerWatt = decodeInt16(img[idx(regDCWatts)], img[idx(regDCWattsSF)])
	d.CabinetTemperature = decodeInt16(img[idx(regTempCabinet)], img[idx(regTempSF)])

	if st := img[idx(regOperatingState)]; st != NotImplementedEnum16 {
		d.OperatingState = &st
	}
	d.MaxRatedPowerWatt = decodeUint16(img[idx(regWattRating)], img[idx(regWattRatingSF)])

	d.PowerLimit = PowerLimit{
		Enabled:           img[idx(regWMaxLimEna)] == 1,
		Percent:           ApplySF(img[idx(regWMaxLimPct)], int16(img[idx(regWMaxLimPctSF)])),
		RevertTimeSeconds: uint32(img[idx(regWMaxLimPctRvrtTms)]),
	}

	return d, nil
}
