package heif2uhdr

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// buildGainmapXMP renders the hdrgm XMP description of the gain map as a
// complete APP1 payload including the namespace prefix. Gain map min/max and
// HDR capacities are stored in log2 space.
func buildGainmapXMP(meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("gain-map metadata missing")
	}
	f := func(v float32) string {
		return strconv.FormatFloat(float64(v), 'f', 6, 32)
	}

	var xml bytes.Buffer
	xml.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="XMP Core 5.1.2">` + "\n")
	xml.WriteString(`  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	xml.WriteString(`    <rdf:Description rdf:about=""` + "\n")
	xml.WriteString(`      xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/"` + "\n")
	xml.WriteString(`      hdrgm:Version="` + meta.Version + `"` + "\n")
	xml.WriteString(`      hdrgm:GainMapMin="` + f(log2f(meta.MinContentBoost[0])) + `"` + "\n")
	xml.WriteString(`      hdrgm:GainMapMax="` + f(log2f(meta.MaxContentBoost[0])) + `"` + "\n")
	xml.WriteString(`      hdrgm:Gamma="` + f(meta.Gamma[0]) + `"` + "\n")
	xml.WriteString(`      hdrgm:OffsetSDR="` + f(meta.OffsetSDR[0]) + `"` + "\n")
	xml.WriteString(`      hdrgm:OffsetHDR="` + f(meta.OffsetHDR[0]) + `"` + "\n")
	xml.WriteString(`      hdrgm:HDRCapacityMin="` + f(log2f(meta.HDRCapacityMin)) + `"` + "\n")
	xml.WriteString(`      hdrgm:HDRCapacityMax="` + f(log2f(meta.HDRCapacityMax)) + `"` + "\n")
	xml.WriteString(`      hdrgm:BaseRenditionIsHDR="False"/>` + "\n")
	xml.WriteString(`  </rdf:RDF>` + "\n")
	xml.WriteString(`</x:xmpmeta>` + "\n")

	payload := make([]byte, 0, len(xmpNamespace)+1+xml.Len())
	payload = append(payload, []byte(xmpNamespace)...)
	payload = append(payload, 0)
	payload = append(payload, xml.Bytes()...)
	return payload, nil
}

var (
	reVersion    = regexp.MustCompile(`hdrgm:Version="([^"]+)"`)
	reGainMapMin = regexp.MustCompile(`hdrgm:GainMapMin="([^"]+)"`)
	reGainMapMax = regexp.MustCompile(`hdrgm:GainMapMax="([^"]+)"`)
	reGamma      = regexp.MustCompile(`hdrgm:Gamma="([^"]+)"`)
	reOffsetSDR  = regexp.MustCompile(`hdrgm:OffsetSDR="([^"]+)"`)
	reOffsetHDR  = regexp.MustCompile(`hdrgm:OffsetHDR="([^"]+)"`)
	reHDRCapMin  = regexp.MustCompile(`hdrgm:HDRCapacityMin="([^"]+)"`)
	reHDRCapMax  = regexp.MustCompile(`hdrgm:HDRCapacityMax="([^"]+)"`)
)

// parseGainmapXMP extracts gain-map metadata from an hdrgm APP1 payload.
func parseGainmapXMP(app1 []byte) (*GainMapMetadata, error) {
	if len(app1) < len(xmpNamespace)+2 {
		return nil, errors.New("xmp block too small")
	}
	if !strings.HasPrefix(string(app1), xmpNamespace+"\x00") {
		return nil, errors.New("xmp namespace mismatch")
	}
	xml := string(app1[len(xmpNamespace)+1:])

	meta := &GainMapMetadata{Version: jpegrVersion, UseBaseCG: true}
	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = 1
		meta.MaxContentBoost[i] = 1
		meta.Gamma[i] = 1
	}
	meta.HDRCapacityMin = 1
	meta.HDRCapacityMax = 1

	getFloat := func(re *regexp.Regexp) (float32, bool, error) {
		m := re.FindStringSubmatch(xml)
		if len(m) != 2 {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(m[1], 32)
		if err != nil {
			return 0, true, err
		}
		return float32(v), true, nil
	}

	if m := reVersion.FindStringSubmatch(xml); len(m) == 2 {
		meta.Version = m[1]
	} else {
		return nil, errors.New("xmp missing version")
	}

	set := func(re *regexp.Regexp, apply func(v float32)) error {
		v, ok, err := getFloat(re)
		if err != nil {
			return err
		}
		if ok {
			apply(v)
		}
		return nil
	}
	if err := set(reGainMapMin, func(v float32) {
		for i := 0; i < 3; i++ {
			meta.MinContentBoost[i] = exp2f(v)
		}
	}); err != nil {
		return nil, err
	}
	if err := set(reGainMapMax, func(v float32) {
		for i := 0; i < 3; i++ {
			meta.MaxContentBoost[i] = exp2f(v)
		}
	}); err != nil {
		return nil, err
	}
	if err := set(reGamma, func(v float32) {
		for i := 0; i < 3; i++ {
			meta.Gamma[i] = v
		}
	}); err != nil {
		return nil, err
	}
	if err := set(reOffsetSDR, func(v float32) {
		for i := 0; i < 3; i++ {
			meta.OffsetSDR[i] = v
		}
	}); err != nil {
		return nil, err
	}
	if err := set(reOffsetHDR, func(v float32) {
		for i := 0; i < 3; i++ {
			meta.OffsetHDR[i] = v
		}
	}); err != nil {
		return nil, err
	}
	if err := set(reHDRCapMin, func(v float32) { meta.HDRCapacityMin = exp2f(v) }); err != nil {
		return nil, err
	}
	if err := set(reHDRCapMax, func(v float32) { meta.HDRCapacityMax = exp2f(v) }); err != nil {
		return nil, err
	}
	return meta, nil
}
