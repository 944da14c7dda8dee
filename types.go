package heif2uhdr

import "fmt"

// ColorGamut identifies the color primaries of the decoded image.
type ColorGamut int

const (
	GamutBT709 ColorGamut = iota
	GamutDisplayP3
	GamutBT2100
)

// ColorRange identifies the code-value range of the decoded YCbCr samples.
type ColorRange int

const (
	RangeLimited ColorRange = iota
	RangeFull
)

// ColorTransfer identifies the transfer function of the decoded image.
type ColorTransfer int

const (
	TransferLinear ColorTransfer = iota
	TransferHLG
	TransferPQ
	TransferSRGB
)

// OutputMode selects the conversion target.
type OutputMode int

const (
	OutputGainMapJPEG OutputMode = iota
	OutputRaw // raw layout chosen by source depth: P010 for 10-bit, C420 for 8-bit
	OutputRawP010
	OutputRawC420
)

// EncodeOptions controls the gain-map JPEG path.
type EncodeOptions struct {
	Gamut          ColorGamut
	Range          ColorRange
	Transfer       ColorTransfer
	Quality        int     // base JPEG quality (0-100)
	GainMapQuality int     // gain-map JPEG quality (0-100)
	GainMapScale   int     // downscale factor for the gain map (>=1)
	GainMapGamma   float32 // gain-map encoding gamma
	MultiChannel   bool    // RGB gain map instead of single-channel
}

// DefaultEncodeOptions returns the options used for camera HEIF conversion:
// BT.2100 full-range HLG input, quality 95 for both images, unscaled
// single-channel gain map.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Gamut:          GamutBT2100,
		Range:          RangeFull,
		Transfer:       TransferHLG,
		Quality:        defaultBaseQuality,
		GainMapQuality: defaultGainMapQuality,
		GainMapScale:   1,
		GainMapGamma:   defaultGainMapGamma,
	}
}

// DecodedImage holds the borrowed planes of one decoded YCbCr 4:2:0 image.
// Strides are in bytes and may exceed the row width; for 10-bit planes each
// sample is a little-endian 16-bit word with the value right-justified.
type DecodedImage struct {
	Width  int // luma plane
	Height int

	ChromaWidth  int
	ChromaHeight int

	BitDepthY  int
	BitDepthCb int
	BitDepthCr int

	StrideY  int
	StrideCb int
	StrideCr int

	Y  []byte
	Cb []byte
	Cr []byte
}

// Validate checks plane geometry before repacking. The decoder can report
// negative dimensions on malformed input; those, non-positive strides, and
// buffers too short for the claimed stride and height are rejected here
// rather than crashing in the repack loops.
func (img *DecodedImage) Validate() error {
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("%w: luma dimensions %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	if img.ChromaWidth < 0 || img.ChromaHeight < 0 {
		return fmt.Errorf("%w: chroma dimensions %dx%d", ErrInvalidImage, img.ChromaWidth, img.ChromaHeight)
	}
	if img.StrideY <= 0 || img.StrideCb <= 0 || img.StrideCr <= 0 {
		return fmt.Errorf("%w: strides %d/%d/%d", ErrInvalidImage, img.StrideY, img.StrideCb, img.StrideCr)
	}
	if img.BitDepthY != img.BitDepthCb || img.BitDepthY != img.BitDepthCr {
		return fmt.Errorf("%w: mixed channel bit depths %d/%d/%d",
			ErrInvalidImage, img.BitDepthY, img.BitDepthCb, img.BitDepthCr)
	}
	if img.Width > 0 && img.Height > 0 {
		if img.ChromaWidth != (img.Width+1)/2 || img.ChromaHeight != (img.Height+1)/2 {
			return fmt.Errorf("%w: chroma %dx%d is not 4:2:0 for luma %dx%d",
				ErrInvalidImage, img.ChromaWidth, img.ChromaHeight, img.Width, img.Height)
		}
	}

	// Strides must cover a full row and buffers must hold every row the
	// repack loops will read.
	bps := 1
	if img.BitDepthY > 8 {
		bps = 2
	}
	if img.Width > 0 {
		row := bps * img.Width
		if img.StrideY < row {
			return fmt.Errorf("%w: luma stride %d shorter than row of %d bytes",
				ErrInvalidImage, img.StrideY, row)
		}
		if img.Height > 0 {
			if need := img.StrideY*(img.Height-1) + row; len(img.Y) < need {
				return fmt.Errorf("%w: luma plane %d bytes, need %d",
					ErrInvalidImage, len(img.Y), need)
			}
		}
	}
	if img.ChromaWidth > 0 {
		row := bps * img.ChromaWidth
		if img.StrideCb < row || img.StrideCr < row {
			return fmt.Errorf("%w: chroma strides %d/%d shorter than row of %d bytes",
				ErrInvalidImage, img.StrideCb, img.StrideCr, row)
		}
		if img.ChromaHeight > 0 {
			if need := img.StrideCb*(img.ChromaHeight-1) + row; len(img.Cb) < need {
				return fmt.Errorf("%w: cb plane %d bytes, need %d",
					ErrInvalidImage, len(img.Cb), need)
			}
			if need := img.StrideCr*(img.ChromaHeight-1) + row; len(img.Cr) < need {
				return fmt.Errorf("%w: cr plane %d bytes, need %d",
					ErrInvalidImage, len(img.Cr), need)
			}
		}
	}
	return nil
}

// Progress receives observational decode/convert progress events. All fields
// are optional. A Progress value carries no state across conversions; build a
// fresh one per call.
type Progress struct {
	Start func(total int)
	Step  func(done int)
	Done  func()
}

func (p *Progress) start(total int) {
	if p != nil && p.Start != nil {
		p.Start(total)
	}
}

func (p *Progress) step(done int) {
	if p != nil && p.Step != nil {
		p.Step(done)
	}
}

func (p *Progress) done() {
	if p != nil && p.Done != nil {
		p.Done()
	}
}
