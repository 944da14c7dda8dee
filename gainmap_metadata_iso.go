package heif2uhdr

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	isoIsMultiChannelMask = 1 << 7
	isoUseBaseColorMask   = 1 << 6
	isoBackwardMask       = 1 << 2
	isoCommonDenomMask    = 1 << 3
)

// gainMapMetadataFrac is the fractional wire form of ISO 21496-1 metadata.
type gainMapMetadataFrac struct {
	GainMapMinN      [3]int32
	GainMapMinD      [3]uint32
	GainMapMaxN      [3]int32
	GainMapMaxD      [3]uint32
	GainMapGammaN    [3]uint32
	GainMapGammaD    [3]uint32
	BaseOffsetN      [3]int32
	BaseOffsetD      [3]uint32
	AltOffsetN       [3]int32
	AltOffsetD       [3]uint32
	BaseHdrHeadroomN uint32
	BaseHdrHeadroomD uint32
	AltHdrHeadroomN  uint32
	AltHdrHeadroomD  uint32
	Backward         bool
	UseBaseColor     bool
}

// buildIsoPayload encodes meta as a complete APP2 payload including the
// namespace prefix.
func buildIsoPayload(meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("gain-map metadata missing")
	}
	var frac gainMapMetadataFrac
	if err := metadataToFraction(meta, &frac); err != nil {
		return nil, err
	}
	encoded, err := frac.encode()
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(isoNamespace)+1+len(encoded))
	payload = append(payload, []byte(isoNamespace)...)
	payload = append(payload, 0)
	payload = append(payload, encoded...)
	return payload, nil
}

// decodeIsoMetadata parses the bare (namespace-stripped) metadata block.
func decodeIsoMetadata(data []byte) (*GainMapMetadata, error) {
	var frac gainMapMetadataFrac
	if err := frac.decode(data); err != nil {
		return nil, err
	}
	meta := &GainMapMetadata{Version: jpegrVersion}
	fracToFloat(&frac, meta)
	return meta, nil
}

func (m *gainMapMetadataFrac) encode() ([]byte, error) {
	const minVersion uint16 = 0
	const writerVersion uint16 = 0

	channelCount := uint8(3)
	if m.allChannelsIdentical() {
		channelCount = 1
	}

	flags := uint8(0)
	if channelCount == 3 {
		flags |= isoIsMultiChannelMask
	}
	if m.UseBaseColor {
		flags |= isoUseBaseColorMask
	}
	if m.Backward {
		flags |= isoBackwardMask
	}

	denom := m.BaseHdrHeadroomD
	useCommon := m.AltHdrHeadroomD == denom
	for c := 0; c < int(channelCount); c++ {
		if m.GainMapMinD[c] != denom || m.GainMapMaxD[c] != denom || m.GainMapGammaD[c] != denom ||
			m.BaseOffsetD[c] != denom || m.AltOffsetD[c] != denom {
			useCommon = false
		}
	}
	if useCommon {
		flags |= isoCommonDenomMask
	}

	out := make([]byte, 0, 128)
	writeU16 := func(v uint16) { out = append(out, byte(v>>8), byte(v)) }
	writeU32 := func(v uint32) { out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }
	writeS32 := func(v int32) { writeU32(uint32(v)) }

	writeU16(minVersion)
	writeU16(writerVersion)
	out = append(out, flags)

	if useCommon {
		writeU32(denom)
		writeU32(m.BaseHdrHeadroomN)
		writeU32(m.AltHdrHeadroomN)
		for c := 0; c < int(channelCount); c++ {
			writeS32(m.GainMapMinN[c])
			writeS32(m.GainMapMaxN[c])
			writeU32(m.GainMapGammaN[c])
			writeS32(m.BaseOffsetN[c])
			writeS32(m.AltOffsetN[c])
		}
		return out, nil
	}

	writeU32(m.BaseHdrHeadroomN)
	writeU32(m.BaseHdrHeadroomD)
	writeU32(m.AltHdrHeadroomN)
	writeU32(m.AltHdrHeadroomD)
	for c := 0; c < int(channelCount); c++ {
		writeS32(m.GainMapMinN[c])
		writeU32(m.GainMapMinD[c])
		writeS32(m.GainMapMaxN[c])
		writeU32(m.GainMapMaxD[c])
		writeU32(m.GainMapGammaN[c])
		writeU32(m.GainMapGammaD[c])
		writeS32(m.BaseOffsetN[c])
		writeU32(m.BaseOffsetD[c])
		writeS32(m.AltOffsetN[c])
		writeU32(m.AltOffsetD[c])
	}
	return out, nil
}

func (m *gainMapMetadataFrac) decode(in []byte) error {
	pos := 0
	readU16 := func() (uint16, error) {
		if pos+2 > len(in) {
			return 0, errors.New("iso metadata truncated")
		}
		v := binary.BigEndian.Uint16(in[pos:])
		pos += 2
		return v, nil
	}
	readU32 := func() (uint32, error) {
		if pos+4 > len(in) {
			return 0, errors.New("iso metadata truncated")
		}
		v := binary.BigEndian.Uint32(in[pos:])
		pos += 4
		return v, nil
	}
	readS32 := func() (int32, error) {
		v, err := readU32()
		return int32(v), err
	}

	minVer, err := readU16()
	if err != nil {
		return err
	}
	if minVer != 0 {
		return errors.New("unsupported iso min_version")
	}
	if _, err = readU16(); err != nil {
		return err
	}
	if pos >= len(in) {
		return errors.New("iso metadata truncated")
	}
	flags := in[pos]
	pos++

	channelCount := 1
	if flags&isoIsMultiChannelMask != 0 {
		channelCount = 3
	}
	m.UseBaseColor = flags&isoUseBaseColorMask != 0
	m.Backward = flags&isoBackwardMask != 0
	useCommon := flags&isoCommonDenomMask != 0

	if useCommon {
		common, err := readU32()
		if err != nil {
			return err
		}
		m.BaseHdrHeadroomD = common
		m.AltHdrHeadroomD = common
		if m.BaseHdrHeadroomN, err = readU32(); err != nil {
			return err
		}
		if m.AltHdrHeadroomN, err = readU32(); err != nil {
			return err
		}
		for c := 0; c < channelCount; c++ {
			if m.GainMapMinN[c], err = readS32(); err != nil {
				return err
			}
			m.GainMapMinD[c] = common
			if m.GainMapMaxN[c], err = readS32(); err != nil {
				return err
			}
			m.GainMapMaxD[c] = common
			if m.GainMapGammaN[c], err = readU32(); err != nil {
				return err
			}
			m.GainMapGammaD[c] = common
			if m.BaseOffsetN[c], err = readS32(); err != nil {
				return err
			}
			m.BaseOffsetD[c] = common
			if m.AltOffsetN[c], err = readS32(); err != nil {
				return err
			}
			m.AltOffsetD[c] = common
		}
	} else {
		if m.BaseHdrHeadroomN, err = readU32(); err != nil {
			return err
		}
		if m.BaseHdrHeadroomD, err = readU32(); err != nil {
			return err
		}
		if m.AltHdrHeadroomN, err = readU32(); err != nil {
			return err
		}
		if m.AltHdrHeadroomD, err = readU32(); err != nil {
			return err
		}
		for c := 0; c < channelCount; c++ {
			if m.GainMapMinN[c], err = readS32(); err != nil {
				return err
			}
			if m.GainMapMinD[c], err = readU32(); err != nil {
				return err
			}
			if m.GainMapMaxN[c], err = readS32(); err != nil {
				return err
			}
			if m.GainMapMaxD[c], err = readU32(); err != nil {
				return err
			}
			if m.GainMapGammaN[c], err = readU32(); err != nil {
				return err
			}
			if m.GainMapGammaD[c], err = readU32(); err != nil {
				return err
			}
			if m.BaseOffsetN[c], err = readS32(); err != nil {
				return err
			}
			if m.BaseOffsetD[c], err = readU32(); err != nil {
				return err
			}
			if m.AltOffsetN[c], err = readS32(); err != nil {
				return err
			}
			if m.AltOffsetD[c], err = readU32(); err != nil {
				return err
			}
		}
	}

	if channelCount == 1 {
		for c := 1; c < 3; c++ {
			m.GainMapMinN[c], m.GainMapMinD[c] = m.GainMapMinN[0], m.GainMapMinD[0]
			m.GainMapMaxN[c], m.GainMapMaxD[c] = m.GainMapMaxN[0], m.GainMapMaxD[0]
			m.GainMapGammaN[c], m.GainMapGammaD[c] = m.GainMapGammaN[0], m.GainMapGammaD[0]
			m.BaseOffsetN[c], m.BaseOffsetD[c] = m.BaseOffsetN[0], m.BaseOffsetD[0]
			m.AltOffsetN[c], m.AltOffsetD[c] = m.AltOffsetN[0], m.AltOffsetD[0]
		}
	}
	return nil
}

func fracToFloat(from *gainMapMetadataFrac, to *GainMapMetadata) {
	to.UseBaseCG = from.UseBaseColor
	for i := 0; i < 3; i++ {
		to.MinContentBoost[i] = exp2f(float32(from.GainMapMinN[i]) / float32(from.GainMapMinD[i]))
		to.MaxContentBoost[i] = exp2f(float32(from.GainMapMaxN[i]) / float32(from.GainMapMaxD[i]))
		to.Gamma[i] = float32(from.GainMapGammaN[i]) / float32(from.GainMapGammaD[i])
		to.OffsetSDR[i] = float32(from.BaseOffsetN[i]) / float32(from.BaseOffsetD[i])
		to.OffsetHDR[i] = float32(from.AltOffsetN[i]) / float32(from.AltOffsetD[i])
	}
	to.HDRCapacityMin = exp2f(float32(from.BaseHdrHeadroomN) / float32(from.BaseHdrHeadroomD))
	to.HDRCapacityMax = exp2f(float32(from.AltHdrHeadroomN) / float32(from.AltHdrHeadroomD))
}

func metadataToFraction(from *GainMapMetadata, to *gainMapMetadataFrac) error {
	to.Backward = false
	to.UseBaseColor = from.UseBaseCG

	channelCount := 3
	if metaAllChannelsIdentical(from) {
		channelCount = 1
	}

	for i := 0; i < channelCount; i++ {
		if err := floatToSignedFraction(log2f(from.MaxContentBoost[i]), &to.GainMapMaxN[i], &to.GainMapMaxD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(log2f(from.MinContentBoost[i]), &to.GainMapMinN[i], &to.GainMapMinD[i]); err != nil {
			return err
		}
		if err := floatToUnsignedFraction(from.Gamma[i], &to.GainMapGammaN[i], &to.GainMapGammaD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(from.OffsetSDR[i], &to.BaseOffsetN[i], &to.BaseOffsetD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(from.OffsetHDR[i], &to.AltOffsetN[i], &to.AltOffsetD[i]); err != nil {
			return err
		}
	}

	if channelCount == 1 {
		for c := 1; c < 3; c++ {
			to.GainMapMaxN[c], to.GainMapMaxD[c] = to.GainMapMaxN[0], to.GainMapMaxD[0]
			to.GainMapMinN[c], to.GainMapMinD[c] = to.GainMapMinN[0], to.GainMapMinD[0]
			to.GainMapGammaN[c], to.GainMapGammaD[c] = to.GainMapGammaN[0], to.GainMapGammaD[0]
			to.BaseOffsetN[c], to.BaseOffsetD[c] = to.BaseOffsetN[0], to.BaseOffsetD[0]
			to.AltOffsetN[c], to.AltOffsetD[c] = to.AltOffsetN[0], to.AltOffsetD[0]
		}
	}

	if err := floatToUnsignedFraction(log2f(from.HDRCapacityMin), &to.BaseHdrHeadroomN, &to.BaseHdrHeadroomD); err != nil {
		return err
	}
	return floatToUnsignedFraction(log2f(from.HDRCapacityMax), &to.AltHdrHeadroomN, &to.AltHdrHeadroomD)
}

func metaAllChannelsIdentical(m *GainMapMetadata) bool {
	for i := 1; i < 3; i++ {
		if m.MinContentBoost[0] != m.MinContentBoost[i] ||
			m.MaxContentBoost[0] != m.MaxContentBoost[i] ||
			m.Gamma[0] != m.Gamma[i] ||
			m.OffsetSDR[0] != m.OffsetSDR[i] ||
			m.OffsetHDR[0] != m.OffsetHDR[i] {
			return false
		}
	}
	return true
}

func (m *gainMapMetadataFrac) allChannelsIdentical() bool {
	for c := 1; c < 3; c++ {
		if m.GainMapMinN[0] != m.GainMapMinN[c] || m.GainMapMinD[0] != m.GainMapMinD[c] ||
			m.GainMapMaxN[0] != m.GainMapMaxN[c] || m.GainMapMaxD[0] != m.GainMapMaxD[c] ||
			m.GainMapGammaN[0] != m.GainMapGammaN[c] || m.GainMapGammaD[0] != m.GainMapGammaD[c] ||
			m.BaseOffsetN[0] != m.BaseOffsetN[c] || m.BaseOffsetD[0] != m.BaseOffsetD[c] ||
			m.AltOffsetN[0] != m.AltOffsetN[c] || m.AltOffsetD[0] != m.AltOffsetD[c] {
			return false
		}
	}
	return true
}

func floatToSignedFraction(v float32, numerator *int32, denominator *uint32) error {
	const maxInt32 = int32(^uint32(0) >> 1)
	num, den, ok := floatToFractionImpl(math.Abs(float64(v)), uint32(maxInt32))
	if !ok {
		return errors.New("failed to encode signed fraction")
	}
	n := int32(num)
	if v < 0 {
		n = -n
	}
	*numerator = n
	*denominator = den
	return nil
}

func floatToUnsignedFraction(v float32, numerator *uint32, denominator *uint32) error {
	num, den, ok := floatToFractionImpl(float64(v), ^uint32(0))
	if !ok {
		return errors.New("failed to encode unsigned fraction")
	}
	*numerator = num
	*denominator = den
	return nil
}

// floatToFractionImpl approximates v by a continued-fraction expansion,
// bounded by maxNumerator.
func floatToFractionImpl(v float64, maxNumerator uint32) (uint32, uint32, bool) {
	if math.IsNaN(v) || v < 0 || v > float64(maxNumerator) {
		return 0, 0, false
	}
	var maxD uint64
	if v <= 1 {
		maxD = uint64(^uint32(0))
	} else {
		maxD = uint64(math.Floor(float64(maxNumerator) / v))
	}

	den := uint32(1)
	prevD := uint32(0)
	currentV := v - math.Floor(v)
	const maxIter = 39
	for iter := 0; iter < maxIter; iter++ {
		numeratorDouble := float64(den) * v
		if numeratorDouble > float64(maxNumerator) {
			return 0, 0, false
		}
		num := uint32(math.Round(numeratorDouble))
		if numeratorDouble == float64(num) || currentV == 0 {
			return num, den, true
		}
		currentV = 1.0 / currentV
		newD := float64(prevD) + math.Floor(currentV)*float64(den)
		if newD > float64(maxD) {
			return num, den, true
		}
		prevD = den
		if newD > float64(^uint32(0)) {
			return 0, 0, false
		}
		den = uint32(newD)
		currentV -= math.Floor(currentV)
	}
	return uint32(math.Round(float64(den) * v)), den, true
}
