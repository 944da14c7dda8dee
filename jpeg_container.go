package heif2uhdr

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	markerStart = 0xFF
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
)

const (
	xmpNamespace = "http://ns.adobe.com/xap/1.0/"
	isoNamespace = "urn:iso:std:iso:ts:21496:-1"
)

// assembleGainMapContainer wraps the primary and gain-map JPEGs into a
// JPEG/R container following the vips marker ordering: ISO version tag,
// MPF index, primary body, then the gain map with its XMP and full ISO
// metadata. Both inputs have their APP segments stripped first.
func assembleGainMapContainer(primaryJPEG, gainmapJPEG, secondaryXMP, secondaryISO []byte) ([]byte, error) {
	if len(primaryJPEG) < 2 || len(gainmapJPEG) < 2 {
		return nil, errors.New("invalid JPEG data")
	}

	primaryStripped, err := stripAppSegments(primaryJPEG)
	if err != nil {
		return nil, err
	}
	gainmapStripped, err := stripAppSegments(gainmapJPEG)
	if err != nil {
		return nil, err
	}

	secondaryImageSize := len(gainmapStripped) + appSize(secondaryXMP) + appSize(secondaryISO)

	var out bytes.Buffer
	writeSOI := func() {
		out.WriteByte(markerStart)
		out.WriteByte(markerSOI)
	}

	writeSOI()

	// Primary carries only the 4-byte version prefix of the ISO metadata.
	isoPrimary := secondaryISO
	if len(isoPrimary) == 0 {
		isoPrimary = buildIsoVersionOnly()
	} else if len(isoPrimary) > len(isoNamespace)+1+4 {
		isoPrimary = append([]byte(nil), isoPrimary[:len(isoNamespace)+1+4]...)
	}
	writeAppSegment(&out, markerAPP2, isoPrimary)

	mpfLen := 2 + calculateMpfSize()
	primaryImageSize := out.Len() + mpfLen + len(primaryStripped)
	secondaryOffset := primaryImageSize - out.Len() - 8
	mpf := generateMpf(primaryImageSize, secondaryImageSize, secondaryOffset)
	writeAppSegment(&out, markerAPP2, mpf)

	out.Write(primaryStripped[2:])

	writeSOI()
	if len(secondaryXMP) > 0 {
		writeAppSegment(&out, markerAPP1, secondaryXMP)
	}
	if len(secondaryISO) > 0 {
		writeAppSegment(&out, markerAPP2, secondaryISO)
	}
	out.Write(gainmapStripped[2:])

	final := out.Bytes()
	if err := fixMpfOffsets(final); err != nil {
		return nil, err
	}
	return final, nil
}

func buildIsoVersionOnly() []byte {
	payload := append(append([]byte{}, []byte(isoNamespace)...), 0)
	return append(payload, 0, 0, 0, 0)
}

func writeAppSegment(out *bytes.Buffer, marker byte, payload []byte) {
	out.WriteByte(markerStart)
	out.WriteByte(marker)
	length := uint16(len(payload) + 2)
	out.WriteByte(byte(length >> 8))
	out.WriteByte(byte(length))
	out.Write(payload)
}

func appSize(payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	return 4 + len(payload)
}

// stripAppSegments removes APP0-APP15 and COM segments from a JPEG.
func stripAppSegments(jpegData []byte) ([]byte, error) {
	if len(jpegData) < 4 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, errors.New("invalid jpeg")
	}
	var out bytes.Buffer
	out.WriteByte(markerStart)
	out.WriteByte(markerSOI)
	pos := 2
	for pos+3 < len(jpegData) {
		if jpegData[pos] != markerStart {
			out.WriteByte(jpegData[pos])
			pos++
			continue
		}
		for pos < len(jpegData) && jpegData[pos] == markerStart {
			pos++
		}
		if pos >= len(jpegData) {
			break
		}
		marker := jpegData[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			out.WriteByte(markerStart)
			out.WriteByte(marker)
			out.Write(jpegData[pos:])
			return out.Bytes(), nil
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			out.WriteByte(markerStart)
			out.WriteByte(marker)
			continue
		}
		if pos+1 >= len(jpegData) {
			return nil, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(jpegData[pos:]))
		if segLen < 2 || pos+segLen > len(jpegData) {
			return nil, errors.New("invalid segment length")
		}
		segStart := pos + 2
		segEnd := pos + segLen
		if marker == 0xFE || (marker >= markerAPP0 && marker <= 0xEF) {
			pos = segEnd
			continue
		}
		out.WriteByte(markerStart)
		out.WriteByte(marker)
		out.Write(jpegData[pos : pos+2])
		out.Write(jpegData[segStart:segEnd])
		pos = segEnd
	}
	return out.Bytes(), nil
}

// scanJPEGs locates the byte ranges of the concatenated JPEG images in a
// container, preferring the MPF index and falling back to a marker scan.
func scanJPEGs(data []byte) ([][2]int, error) {
	if ranges, ok := scanJPEGsByMpf(data); ok {
		return ranges, nil
	}
	var ranges [][2]int
	i := 0
	for i+1 < len(data) {
		if data[i] == markerStart && data[i+1] == markerSOI {
			end, err := findJPEGEnd(data, i)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, [2]int{i, end})
			i = end
			continue
		}
		i++
	}
	if len(ranges) == 0 {
		return nil, errors.New("no JPEG images found")
	}
	return ranges, nil
}

func scanJPEGsByMpf(data []byte) ([][2]int, bool) {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return nil, false
	}
	mpfStart, _, err := findMpfSegment(data)
	if err != nil || mpfStart < 0 {
		return nil, false
	}
	info, err := parseMpf(data[mpfStart:])
	if err != nil {
		return nil, false
	}
	tiffHeaderAbs := mpfStart + len(mpfSig)
	secondaryStart := tiffHeaderAbs + info.secondaryOffset
	primaryEnd := info.primarySize
	secondaryEnd := secondaryStart + info.secondarySize
	if primaryEnd <= 0 || primaryEnd > len(data) || secondaryStart < 0 || secondaryEnd > len(data) {
		return nil, false
	}
	if secondaryStart+1 >= len(data) || data[secondaryStart] != markerStart || data[secondaryStart+1] != markerSOI {
		return nil, false
	}
	return [][2]int{{0, primaryEnd}, {secondaryStart, secondaryEnd}}, true
}

// findMpfSegment returns the payload start and length of the MPF APP2
// segment in the header of the first JPEG, or (-1, 0) when absent.
func findMpfSegment(data []byte) (int, int, error) {
	pos := 2
	for pos+3 < len(data) {
		if data[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == markerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 || marker == 0x01 || marker == markerSOI {
			continue
		}
		if pos+1 >= len(data) {
			return -1, 0, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			return -1, 0, errors.New("invalid segment length")
		}
		segStart := pos + 2
		segEnd := pos + segLen
		if marker == markerAPP2 && bytes.HasPrefix(data[segStart:segEnd], mpfSig) {
			return segStart, segEnd - segStart, nil
		}
		pos = segEnd
	}
	return -1, 0, nil
}

func findJPEGEnd(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != markerStart || data[start+1] != markerSOI {
		return 0, errors.New("not a JPEG SOI")
	}
	pos := start + 2
	inScan := false
	for pos+1 < len(data) {
		if !inScan {
			if data[pos] != markerStart {
				pos++
				continue
			}
			for pos < len(data) && data[pos] == markerStart {
				pos++
			}
			if pos >= len(data) {
				break
			}
			marker := data[pos]
			pos++
			switch marker {
			case markerSOI:
				continue
			case markerEOI:
				return pos, nil
			case markerSOS:
				if pos+1 >= len(data) {
					return 0, errors.New("truncated SOS")
				}
				pos += int(binary.BigEndian.Uint16(data[pos:]))
				inScan = true
				continue
			}
			if marker >= 0xD0 && marker <= 0xD7 || marker == 0x01 {
				continue
			}
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker segment")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length")
			}
			pos += segLen
			continue
		}

		// in scan data
		if data[pos] == markerStart {
			if pos+1 >= len(data) {
				return 0, errors.New("truncated scan data")
			}
			next := data[pos+1]
			switch {
			case next == 0x00 || (next >= 0xD0 && next <= 0xD7):
				pos += 2
				continue
			case next == markerEOI:
				return pos + 2, nil
			default:
				pos += 2
				if pos+1 >= len(data) {
					return 0, errors.New("truncated marker in scan")
				}
				segLen := int(binary.BigEndian.Uint16(data[pos:]))
				if segLen < 2 {
					return 0, errors.New("invalid marker length in scan")
				}
				pos += segLen
				continue
			}
		}
		pos++
	}
	return 0, errors.New("no EOI found")
}

// extractAppSegments collects APP1 and APP2 payloads from the header of one
// JPEG image.
func extractAppSegments(jpegData []byte) (app1 [][]byte, app2 [][]byte, err error) {
	if len(jpegData) < 4 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, nil, errors.New("invalid JPEG")
	}
	pos := 2
	for pos+3 < len(jpegData) {
		if jpegData[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(jpegData) && jpegData[pos] == markerStart {
			pos++
		}
		if pos >= len(jpegData) {
			break
		}
		marker := jpegData[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if pos+1 >= len(jpegData) {
			return nil, nil, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(jpegData[pos:]))
		if segLen < 2 || pos+segLen > len(jpegData) {
			return nil, nil, errors.New("invalid segment length")
		}
		segStart := pos + 2
		segEnd := pos + segLen
		switch marker {
		case markerAPP1:
			app1 = append(app1, append([]byte(nil), jpegData[segStart:segEnd]...))
		case markerAPP2:
			app2 = append(app2, append([]byte(nil), jpegData[segStart:segEnd]...))
		}
		pos = segEnd
	}
	return app1, app2, nil
}

func findXMP(app1 [][]byte) []byte {
	for _, seg := range app1 {
		if bytes.HasPrefix(seg, append([]byte(xmpNamespace), 0)) {
			return seg
		}
	}
	return nil
}

func findISO(app2 [][]byte) []byte {
	for _, seg := range app2 {
		if bytes.HasPrefix(seg, append([]byte(isoNamespace), 0)) {
			return seg
		}
	}
	return nil
}

// fixMpfOffsets rewrites the MPF payload in place with the final image
// ranges of the assembled container.
func fixMpfOffsets(data []byte) error {
	mpfStart, mpfLen, err := findMpfSegment(data)
	if err != nil {
		return err
	}
	if mpfStart < 0 || mpfLen <= 0 {
		return errors.New("mpf not found")
	}

	ranges, err := scanJPEGs(data)
	if err != nil || len(ranges) < 2 {
		return errors.New("jpeg ranges not found")
	}
	primarySize := ranges[0][1] - ranges[0][0]
	secondarySize := ranges[1][1] - ranges[1][0]
	secondaryOffset := ranges[1][0] - (mpfStart + len(mpfSig))

	newMpf := generateMpf(primarySize, secondarySize, secondaryOffset)
	if len(newMpf) != mpfLen {
		return errors.New("mpf size mismatch")
	}
	copy(data[mpfStart:mpfStart+mpfLen], newMpf)
	return nil
}
