package heif2uhdr

import (
	"bytes"
	"testing"
)

func sampleMetadata() *GainMapMetadata {
	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1,
		HDRCapacityMax: 4.9,
	}
	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = 1
		meta.MaxContentBoost[i] = 4.9
		meta.Gamma[i] = 1
		meta.OffsetSDR[i] = sdrOffset
		meta.OffsetHDR[i] = hdrOffset
	}
	return meta
}

func TestIsoPayloadRoundTrip(t *testing.T) {
	meta := sampleMetadata()

	payload, err := buildIsoPayload(meta)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	prefix := append([]byte(isoNamespace), 0)
	if !bytes.HasPrefix(payload, prefix) {
		t.Fatal("payload missing iso namespace prefix")
	}

	got, err := decodeIsoMetadata(payload[len(prefix):])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := 0; i < 3; i++ {
		near(t, got.MinContentBoost[i], meta.MinContentBoost[i], 1e-4, "min boost")
		near(t, got.MaxContentBoost[i], meta.MaxContentBoost[i], 1e-3, "max boost")
		near(t, got.Gamma[i], meta.Gamma[i], 1e-5, "gamma")
		near(t, got.OffsetSDR[i], meta.OffsetSDR[i], 1e-9, "sdr offset")
		near(t, got.OffsetHDR[i], meta.OffsetHDR[i], 1e-9, "hdr offset")
	}
	near(t, got.HDRCapacityMin, meta.HDRCapacityMin, 1e-4, "capacity min")
	near(t, got.HDRCapacityMax, meta.HDRCapacityMax, 1e-3, "capacity max")
	if !got.UseBaseCG {
		t.Fatal("UseBaseCG lost")
	}
}

func TestIsoPayloadMultiChannelRoundTrip(t *testing.T) {
	meta := sampleMetadata()
	meta.MaxContentBoost = [3]float32{2, 4, 8}
	meta.MinContentBoost = [3]float32{1, 1.5, 2}
	meta.HDRCapacityMax = 8

	payload, err := buildIsoPayload(meta)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := decodeIsoMetadata(payload[len(isoNamespace)+1:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := 0; i < 3; i++ {
		near(t, got.MaxContentBoost[i], meta.MaxContentBoost[i], 1e-3, "max boost")
		near(t, got.MinContentBoost[i], meta.MinContentBoost[i], 1e-3, "min boost")
	}
}

func TestDecodeIsoMetadataTruncated(t *testing.T) {
	meta := sampleMetadata()
	payload, err := buildIsoPayload(meta)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := payload[len(isoNamespace)+1:]
	for _, n := range []int{0, 1, 4, 5, len(data) - 1} {
		if _, err := decodeIsoMetadata(data[:n]); err == nil {
			t.Fatalf("truncation to %d bytes accepted", n)
		}
	}
}

func TestDecodeIsoMetadataBadVersion(t *testing.T) {
	data := []byte{0x00, 0x05, 0x00, 0x00, 0x00}
	if _, err := decodeIsoMetadata(data); err == nil {
		t.Fatal("unsupported min_version accepted")
	}
}

func TestFloatToFraction(t *testing.T) {
	var n int32
	var d uint32
	if err := floatToSignedFraction(0.5, &n, &d); err != nil {
		t.Fatalf("signed: %v", err)
	}
	if float64(n)/float64(d) != 0.5 {
		t.Fatalf("0.5 encoded as %d/%d", n, d)
	}

	if err := floatToSignedFraction(-0.25, &n, &d); err != nil {
		t.Fatalf("signed negative: %v", err)
	}
	if float64(n)/float64(d) != -0.25 {
		t.Fatalf("-0.25 encoded as %d/%d", n, d)
	}

	var un, ud uint32
	if err := floatToUnsignedFraction(1.0/3.0, &un, &ud); err != nil {
		t.Fatalf("unsigned: %v", err)
	}
	got := float64(un) / float64(ud)
	if got < 0.3333 || got > 0.3334 {
		t.Fatalf("1/3 encoded as %d/%d = %v", un, ud, got)
	}

	if err := floatToUnsignedFraction(-1, &un, &ud); err == nil {
		t.Fatal("negative unsigned fraction accepted")
	}
}
