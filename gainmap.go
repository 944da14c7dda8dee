package heif2uhdr

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
)

const (
	sdrOffset = 1e-7
	hdrOffset = 1e-7
)

// GainMapMetadata holds the float form of the ISO 21496-1 gain-map metadata.
type GainMapMetadata struct {
	Version         string
	MaxContentBoost [3]float32
	MinContentBoost [3]float32
	Gamma           [3]float32
	OffsetSDR       [3]float32
	OffsetHDR       [3]float32
	HDRCapacityMin  float32
	HDRCapacityMax  float32
	UseBaseCG       bool
}

// generateGainMap computes a recovery gain map between the clipped SDR base
// rendition and the HDR image, both in linear light relative to SDR white and
// in the same gamut. A single-channel map encodes max(R,G,B) gain; the
// multi-channel variant encodes per-channel gains.
func generateGainMap(sdr, hdr *HDRImage, opt EncodeOptions) (image.Image, *GainMapMetadata, error) {
	if sdr == nil || hdr == nil {
		return nil, nil, errors.New("missing SDR or HDR input")
	}
	if sdr.W != hdr.W || sdr.H != hdr.H {
		return nil, nil, errors.New("SDR and HDR dimensions must match")
	}
	w, h := hdr.W, hdr.H
	gamma := opt.GainMapGamma
	if gamma <= 0 {
		gamma = 1
	}

	channels := 1
	if opt.MultiChannel {
		channels = 3
	}
	gains := make([]float32, w*h*channels)
	gainMin := make([]float32, channels)
	gainMax := make([]float32, channels)
	for i := 0; i < channels; i++ {
		gainMin[i] = float32(math.MaxFloat32)
		gainMax[i] = -float32(math.MaxFloat32)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := sdr.At(x, y)
			e := hdr.At(x, y)
			if opt.MultiChannel {
				g0 := computeGain(sdrWhiteNits*s.r, sdrWhiteNits*e.r)
				g1 := computeGain(sdrWhiteNits*s.g, sdrWhiteNits*e.g)
				g2 := computeGain(sdrWhiteNits*s.b, sdrWhiteNits*e.b)
				i := (y*w + x) * 3
				gains[i] = g0
				gains[i+1] = g1
				gains[i+2] = g2
				updateMinMax(gainMin, gainMax, g0, g1, g2)
			} else {
				sY := sdrWhiteNits * max3(s.r, s.g, s.b)
				eY := sdrWhiteNits * max3(e.r, e.g, e.b)
				g := computeGain(sY, eY)
				gains[y*w+x] = g
				if g < gainMin[0] {
					gainMin[0] = g
				}
				if g > gainMax[0] {
					gainMax[0] = g
				}
			}
		}
	}

	for i := 0; i < channels; i++ {
		gainMin[i] = clampGainLog2(gainMin[i])
		gainMax[i] = clampGainLog2(gainMax[i])
		if gainMax[i]-gainMin[i] < 1e-6 {
			gainMax[i] = gainMin[i] + 0.1
		}
	}

	var gainmap image.Image
	if opt.MultiChannel {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := (y*w + x) * 3
				out.SetRGBA(x, y, color.RGBA{
					R: affineMapGain(gains[i], gainMin[0], gainMax[0], gamma),
					G: affineMapGain(gains[i+1], gainMin[1], gainMax[1], gamma),
					B: affineMapGain(gains[i+2], gainMin[2], gainMax[2], gamma),
					A: 0xFF,
				})
			}
		}
		gainmap = out
	} else {
		out := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.SetGray(x, y, color.Gray{Y: affineMapGain(gains[y*w+x], gainMin[0], gainMax[0], gamma)})
			}
		}
		gainmap = out
	}

	if opt.GainMapScale > 1 {
		mw := w / opt.GainMapScale
		mh := h / opt.GainMapScale
		if mw <= 0 || mh <= 0 {
			return nil, nil, errors.New("gain map scale too large")
		}
		gainmap = resize.Resize(uint(mw), uint(mh), gainmap, resize.Lanczos3)
	}

	meta := &GainMapMetadata{
		Version:        jpegrVersion,
		UseBaseCG:      true,
		HDRCapacityMin: 1.0,
	}
	if opt.MultiChannel {
		for i := 0; i < 3; i++ {
			meta.MinContentBoost[i] = exp2f(gainMin[i])
			meta.MaxContentBoost[i] = exp2f(gainMax[i])
			meta.Gamma[i] = gamma
			meta.OffsetSDR[i] = sdrOffset
			meta.OffsetHDR[i] = hdrOffset
		}
		meta.HDRCapacityMax = meta.MaxContentBoost[0]
	} else {
		minBoost := exp2f(gainMin[0])
		maxBoost := exp2f(gainMax[0])
		for i := 0; i < 3; i++ {
			meta.MinContentBoost[i] = minBoost
			meta.MaxContentBoost[i] = maxBoost
			meta.Gamma[i] = gamma
			meta.OffsetSDR[i] = sdrOffset
			meta.OffsetHDR[i] = hdrOffset
		}
		meta.HDRCapacityMax = maxBoost
	}
	return gainmap, meta, nil
}

func computeGain(sdr, hdr float32) float32 {
	gain := log2f((hdr + hdrOffset) / (sdr + sdrOffset))
	if sdr < 2.0/255.0 {
		// Dark pixels are noise-dominated; cap their boost.
		if gain > 2.3 {
			gain = 2.3
		}
	}
	return gain
}

func clampGainLog2(v float32) float32 {
	if v < -14.3 {
		return -14.3
	}
	if v > 15.6 {
		return 15.6
	}
	return v
}

func affineMapGain(gainlog2, minlog2, maxlog2, gamma float32) uint8 {
	denom := maxlog2 - minlog2
	if denom == 0 {
		denom = 1
	}
	mapped := clamp01((gainlog2 - minlog2) / denom)
	if gamma != 1 {
		mapped = float32(math.Pow(float64(mapped), float64(gamma)))
	}
	return uint8(mapped*255 + 0.5)
}

func updateMinMax(minv, maxv []float32, r, g, b float32) {
	if r < minv[0] {
		minv[0] = r
	}
	if r > maxv[0] {
		maxv[0] = r
	}
	if g < minv[1] {
		minv[1] = g
	}
	if g > maxv[1] {
		maxv[1] = g
	}
	if b < minv[2] {
		minv[2] = b
	}
	if b > maxv[2] {
		maxv[2] = b
	}
}
