package heif2uhdr

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func testJPEG(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	data, err := encodeJPEG(img, 90)
	if err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return data
}

func TestGenerateParseMpf(t *testing.T) {
	payload := generateMpf(1000, 500, 800)
	if len(payload) != calculateMpfSize() {
		t.Fatalf("payload size %d, want %d", len(payload), calculateMpfSize())
	}
	info, err := parseMpf(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.primarySize != 1000 || info.secondarySize != 500 || info.secondaryOffset != 800 {
		t.Fatalf("parsed %+v", info)
	}
}

func TestParseMpfRejectsGarbage(t *testing.T) {
	if _, err := parseMpf([]byte("not an mpf payload")); err == nil {
		t.Fatal("garbage accepted")
	}
	if _, err := parseMpf(nil); err == nil {
		t.Fatal("empty payload accepted")
	}
	// Valid signature, broken TIFF endian marker.
	bad := append(append([]byte{}, mpfSig...), 0, 0, 0, 0, 0, 0, 0, 0)
	if _, err := parseMpf(bad); err == nil {
		t.Fatal("bad endian accepted")
	}
}

func TestStripAppSegments(t *testing.T) {
	plain := testJPEG(t, 8, 8, 128)

	// Splice an APP1 segment right after SOI.
	var withApp bytes.Buffer
	withApp.Write(plain[:2])
	writeAppSegment(&withApp, markerAPP1, []byte("exif-ish payload"))
	withApp.Write(plain[2:])

	stripped, err := stripAppSegments(withApp.Bytes())
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if !bytes.Equal(stripped, plain) {
		t.Fatalf("stripped %d bytes, want %d (original)", len(stripped), len(plain))
	}

	if _, err := stripAppSegments([]byte{0, 1, 2}); err == nil {
		t.Fatal("non-jpeg accepted")
	}
}

func TestFindJPEGEnd(t *testing.T) {
	data := testJPEG(t, 8, 8, 100)
	end, err := findJPEGEnd(data, 0)
	if err != nil {
		t.Fatalf("find end: %v", err)
	}
	if end != len(data) {
		t.Fatalf("end %d, want %d", end, len(data))
	}

	// Two concatenated images.
	second := testJPEG(t, 4, 4, 30)
	both := append(append([]byte{}, data...), second...)
	end, err = findJPEGEnd(data, 0)
	if err != nil || end != len(data) {
		t.Fatalf("first image end %d (%v), want %d", end, err, len(data))
	}
	end2, err := findJPEGEnd(both, len(data))
	if err != nil || end2 != len(both) {
		t.Fatalf("second image end %d (%v), want %d", end2, err, len(both))
	}
}

func TestAssembleGainMapContainer(t *testing.T) {
	primary := testJPEG(t, 16, 16, 200)
	gainmap := testJPEG(t, 16, 16, 60)
	meta := sampleMetadata()

	iso, err := buildIsoPayload(meta)
	if err != nil {
		t.Fatalf("iso: %v", err)
	}
	xmp, err := buildGainmapXMP(meta)
	if err != nil {
		t.Fatalf("xmp: %v", err)
	}

	container, err := assembleGainMapContainer(primary, gainmap, xmp, iso)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if container[0] != markerStart || container[1] != markerSOI {
		t.Fatal("container does not start with SOI")
	}

	ranges, err := scanJPEGs(container)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("found %d images, want 2", len(ranges))
	}
	if ranges[0][0] != 0 || ranges[1][1] != len(container) {
		t.Fatalf("ranges %v do not cover container of %d bytes", ranges, len(container))
	}

	// The rewritten MPF index must agree with the real layout.
	mpfStart, _, err := findMpfSegment(container)
	if err != nil || mpfStart < 0 {
		t.Fatalf("mpf segment: start=%d err=%v", mpfStart, err)
	}
	info, err := parseMpf(container[mpfStart:])
	if err != nil {
		t.Fatalf("parse mpf: %v", err)
	}
	if info.primarySize != ranges[0][1] {
		t.Fatalf("mpf primary size %d, want %d", info.primarySize, ranges[0][1])
	}
	if got := mpfStart + len(mpfSig) + info.secondaryOffset; got != ranges[1][0] {
		t.Fatalf("mpf secondary offset resolves to %d, want %d", got, ranges[1][0])
	}
	if info.secondarySize != ranges[1][1]-ranges[1][0] {
		t.Fatalf("mpf secondary size %d, want %d", info.secondarySize, ranges[1][1]-ranges[1][0])
	}

	// Both images still decode.
	img, err := jpeg.Decode(bytes.NewReader(container[ranges[0][0]:ranges[0][1]]))
	if err != nil {
		t.Fatalf("decode primary: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("primary bounds %v", b)
	}
	if _, err := jpeg.Decode(bytes.NewReader(container[ranges[1][0]:ranges[1][1]])); err != nil {
		t.Fatalf("decode gain map: %v", err)
	}

	// Gain-map metadata survives in the secondary image header.
	app1, app2, err := extractAppSegments(container[ranges[1][0]:ranges[1][1]])
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	xmpSeg := findXMP(app1)
	if xmpSeg == nil {
		t.Fatal("secondary xmp missing")
	}
	parsed, err := parseGainmapXMP(xmpSeg)
	if err != nil {
		t.Fatalf("parse xmp: %v", err)
	}
	near(t, parsed.MaxContentBoost[0], meta.MaxContentBoost[0], 0.01, "xmp max boost")

	isoSeg := findISO(app2)
	if isoSeg == nil {
		t.Fatal("secondary iso metadata missing")
	}
	decoded, err := decodeIsoMetadata(isoSeg[len(isoNamespace)+1:])
	if err != nil {
		t.Fatalf("decode iso: %v", err)
	}
	near(t, decoded.MaxContentBoost[0], meta.MaxContentBoost[0], 0.01, "iso max boost")

	// The primary carries the version-only ISO tag and the MPF index.
	_, primaryApp2, err := extractAppSegments(container[:ranges[0][1]])
	if err != nil {
		t.Fatalf("extract primary: %v", err)
	}
	if len(primaryApp2) != 2 {
		t.Fatalf("primary has %d APP2 segments, want 2", len(primaryApp2))
	}
	if seg := findISO(primaryApp2); seg == nil {
		t.Fatal("primary iso version tag missing")
	} else if len(seg) != len(isoNamespace)+1+4 {
		t.Fatalf("primary iso tag is %d bytes, want version prefix only", len(seg))
	}
}

func TestAssembleRejectsInvalidInput(t *testing.T) {
	good := testJPEG(t, 4, 4, 10)
	if _, err := assembleGainMapContainer([]byte{0xFF}, good, nil, nil); err == nil {
		t.Fatal("short primary accepted")
	}
	if _, err := assembleGainMapContainer(good, []byte("nope"), nil, nil); err == nil {
		t.Fatal("invalid gain map accepted")
	}
}

func TestScanJPEGsFallback(t *testing.T) {
	// No MPF present: the marker scan must still find both images.
	a := testJPEG(t, 8, 8, 40)
	b := testJPEG(t, 8, 8, 90)
	both := append(append([]byte{}, a...), b...)

	ranges, err := scanJPEGs(both)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("found %d images, want 2", len(ranges))
	}
	if ranges[0] != [2]int{0, len(a)} || ranges[1] != [2]int{len(a), len(both)} {
		t.Fatalf("ranges %v", ranges)
	}
}

func TestBuildParseGainmapXMP(t *testing.T) {
	meta := sampleMetadata()
	payload, err := buildGainmapXMP(meta)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.HasPrefix(payload, append([]byte(xmpNamespace), 0)) {
		t.Fatal("missing xmp namespace prefix")
	}
	if !bytes.Contains(payload, []byte(`hdrgm:BaseRenditionIsHDR="False"`)) {
		t.Fatal("base rendition flag missing")
	}

	parsed, err := parseGainmapXMP(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Version != meta.Version {
		t.Fatalf("version %q, want %q", parsed.Version, meta.Version)
	}
	near(t, parsed.MinContentBoost[0], meta.MinContentBoost[0], 1e-4, "min boost")
	near(t, parsed.MaxContentBoost[0], meta.MaxContentBoost[0], 1e-2, "max boost")
	near(t, parsed.Gamma[0], meta.Gamma[0], 1e-5, "gamma")
	near(t, parsed.HDRCapacityMax, meta.HDRCapacityMax, 1e-2, "capacity max")

	if _, err := parseGainmapXMP([]byte("short")); err == nil {
		t.Fatal("short payload accepted")
	}
	if _, err := parseGainmapXMP(bytes.Repeat([]byte{'x'}, 100)); err == nil {
		t.Fatal("wrong namespace accepted")
	}
}
