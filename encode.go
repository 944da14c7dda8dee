package heif2uhdr

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// EncodeGainMapJPEG renders a P010 buffer into an UltraHDR gain-map JPEG:
// the HDR pixels are linearized according to opt, a clipped SDR base
// rendition and a recovery gain map are derived, both are JPEG-encoded, and
// the result is wrapped into an MPF-indexed JPEG/R container with ISO
// 21496-1 and XMP gain-map metadata.
func EncodeGainMapJPEG(p *P010Image, opt EncodeOptions) ([]byte, error) {
	if p == nil || p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}

	hdr := p.ToLinearRGB(opt)
	base, baseLinear := RenderSDRBase(hdr)

	gainmap, meta, err := generateGainMap(baseLinear, hdr, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	quality := opt.Quality
	if quality <= 0 {
		quality = defaultBaseQuality
	}
	gmQuality := opt.GainMapQuality
	if gmQuality <= 0 {
		gmQuality = defaultGainMapQuality
	}

	primaryJPEG, err := encodeJPEG(base, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: primary: %v", ErrEncode, err)
	}
	gainmapJPEG, err := encodeJPEG(gainmap, gmQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: gain map: %v", ErrEncode, err)
	}

	iso, err := buildIsoPayload(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: iso metadata: %v", ErrEncode, err)
	}
	xmp, err := buildGainmapXMP(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: xmp metadata: %v", ErrEncode, err)
	}

	container, err := assembleGainMapContainer(primaryJPEG, gainmapJPEG, xmp, iso)
	if err != nil {
		return nil, fmt.Errorf("%w: container: %v", ErrEncode, err)
	}
	return container, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
