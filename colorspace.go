package heif2uhdr

import (
	"image"
	"image/color"
	"math"
)

type rgb struct {
	r, g, b float32
}

// HDRImage stores linear-light RGB float32 pixels relative to SDR white
// (1.0 = SDR white, 203 nits).
type HDRImage struct {
	W, H int
	Pix  []float32
}

// At returns the pixel at (x, y), clamping coordinates to the image bounds.
func (h *HDRImage) At(x, y int) rgb {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= h.W {
		x = h.W - 1
	}
	if y >= h.H {
		y = h.H - 1
	}
	i := (y*h.W + x) * 3
	return rgb{r: h.Pix[i], g: h.Pix[i+1], b: h.Pix[i+2]}
}

func log2f(v float32) float32 { return float32(math.Log2(float64(v))) }
func exp2f(v float32) float32 { return float32(math.Exp2(float64(v))) }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

func srgbOetf(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*float32(math.Pow(float64(v), 1.0/2.4)) - 0.055
}

// hlgInvOetf maps an HLG signal value to linear scene light in [0, 1].
func hlgInvOetf(v float32) float32 {
	const (
		a = 0.17883277
		b = 0.28466892
		c = 0.55991073
	)
	if v < 0 {
		v = 0
	}
	if v <= 0.5 {
		return v * v / 3.0
	}
	return (float32(math.Exp(float64((v-c)/a))) + b) / 12.0
}

// pqEotf maps a PQ signal value to display light as a fraction of 10000 nits.
func pqEotf(v float32) float32 {
	const (
		m1 = 2610.0 / 16384.0
		m2 = 2523.0 / 4096.0 * 128.0
		c1 = 3424.0 / 4096.0
		c2 = 2413.0 / 4096.0 * 32.0
		c3 = 2392.0 / 4096.0 * 32.0
	)
	if v < 0 {
		v = 0
	}
	p := math.Pow(float64(v), 1.0/m2)
	num := p - c1
	if num < 0 {
		num = 0
	}
	den := c2 - c3*p
	if den <= 0 {
		return 1
	}
	return float32(math.Pow(num/den, 1.0/m1))
}

// ycbcrCoeffs returns the Kr/Kb luma coefficients for a gamut. Display P3
// video uses the BT.709 matrix.
func ycbcrCoeffs(gamut ColorGamut) (kr, kb float32) {
	if gamut == GamutBT2100 {
		return 0.2627, 0.0593
	}
	return 0.2126, 0.0722
}

// yuvToRGB converts one 10-bit YCbCr sample triple to non-linear R'G'B' in
// [0, 1] according to the range and gamut tags.
func yuvToRGB(y10, cb10, cr10 uint16, rng ColorRange, gamut ColorGamut) rgb {
	var yf, cbf, crf float32
	if rng == RangeLimited {
		yf = (float32(y10) - 64.0) / 876.0
		cbf = (float32(cb10) - 512.0) / 896.0
		crf = (float32(cr10) - 512.0) / 896.0
	} else {
		yf = float32(y10) / 1023.0
		cbf = (float32(cb10) - 512.0) / 1023.0
		crf = (float32(cr10) - 512.0) / 1023.0
	}
	yf = clamp01(yf)

	kr, kb := ycbcrCoeffs(gamut)
	kg := 1.0 - kr - kb
	r := yf + 2.0*(1.0-kr)*crf
	b := yf + 2.0*(1.0-kb)*cbf
	g := (yf - kr*r - kb*b) / kg
	return rgb{r: clamp01(r), g: clamp01(g), b: clamp01(b)}
}

// toLinear maps a non-linear sample to linear light relative to SDR white.
func toLinear(v float32, transfer ColorTransfer) float32 {
	switch transfer {
	case TransferHLG:
		return hlgInvOetf(v)
	case TransferPQ:
		return pqEotf(v) * pqMaxNits / sdrWhiteNits
	case TransferSRGB:
		return srgbInvOetf(v)
	default:
		return v
	}
}

// hlgOOTF applies the HLG system gamma (1.2) to a scene-light pixel and
// rescales it relative to SDR white for a nominal 1000-nit display.
func hlgOOTF(e rgb) rgb {
	ys := 0.2627*e.r + 0.6780*e.g + 0.0593*e.b
	scale := float32(1.0)
	if ys > 0 {
		scale = float32(math.Pow(float64(ys), 1.2-1.0))
	}
	k := scale * hlgMaxNits / sdrWhiteNits
	return rgb{r: e.r * k, g: e.g * k, b: e.b * k}
}

// ToLinearRGB converts a P010 buffer to a linear-light HDR image in BT.709
// primaries. Chroma is upsampled by sample duplication (nearest).
func (p *P010Image) ToLinearRGB(opt EncodeOptions) *HDRImage {
	out := &HDRImage{W: p.Width, H: p.Height, Pix: make([]float32, p.Width*p.Height*3)}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			y10 := p.Sample(x, y)
			cb10, cr10 := p.ChromaSample(x, y)
			e := yuvToRGB(y10, cb10, cr10, opt.Range, opt.Gamut)
			lin := rgb{
				r: toLinear(e.r, opt.Transfer),
				g: toLinear(e.g, opt.Transfer),
				b: toLinear(e.b, opt.Transfer),
			}
			if opt.Transfer == TransferHLG {
				lin = hlgOOTF(lin)
			}
			lin = convertLinearGamut(lin, opt.Gamut, GamutBT709)
			i := (y*p.Width + x) * 3
			out.Pix[i] = lin.r
			out.Pix[i+1] = lin.g
			out.Pix[i+2] = lin.b
		}
	}
	return out
}

// RenderSDRBase produces the base SDR rendition of an HDR image by clipping
// at SDR white and encoding with the sRGB OETF. The returned linear image
// holds the clipped linear values used for gain-map generation.
func RenderSDRBase(hdr *HDRImage) (*image.RGBA, *HDRImage) {
	img := image.NewRGBA(image.Rect(0, 0, hdr.W, hdr.H))
	lin := &HDRImage{W: hdr.W, H: hdr.H, Pix: make([]float32, len(hdr.Pix))}
	for y := 0; y < hdr.H; y++ {
		for x := 0; x < hdr.W; x++ {
			e := hdr.At(x, y)
			c := rgb{r: clamp01(e.r), g: clamp01(e.g), b: clamp01(e.b)}
			i := (y*hdr.W + x) * 3
			lin.Pix[i] = c.r
			lin.Pix[i+1] = c.g
			lin.Pix[i+2] = c.b
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(clamp01(srgbOetf(c.r))*255 + 0.5),
				G: uint8(clamp01(srgbOetf(c.g))*255 + 0.5),
				B: uint8(clamp01(srgbOetf(c.b))*255 + 0.5),
				A: 0xFF,
			})
		}
	}
	return img, lin
}

func convertLinearGamut(v rgb, from, to ColorGamut) rgb {
	if from == to {
		return v
	}
	x, y, z := rgbToXYZ(v, from)
	return xyzToRGB(x, y, z, to)
}

// Matrices are D65 linear RGB <-> XYZ.
func rgbToXYZ(v rgb, from ColorGamut) (float32, float32, float32) {
	switch from {
	case GamutDisplayP3:
		return 0.48657095*v.r + 0.2656677*v.g + 0.19821729*v.b,
			0.22897457*v.r + 0.69173855*v.g + 0.07928691*v.b,
			0.04511338*v.g + 1.0439444*v.b
	case GamutBT2100:
		return 0.6369580*v.r + 0.1446169*v.g + 0.1688810*v.b,
			0.2627002*v.r + 0.6779981*v.g + 0.0593017*v.b,
			0.0280727*v.g + 1.0609851*v.b
	default:
		return 0.4123908*v.r + 0.35758433*v.g + 0.1804808*v.b,
			0.212639*v.r + 0.71516865*v.g + 0.07219232*v.b,
			0.019330818*v.r + 0.11919478*v.g + 0.95053214*v.b
	}
}

func xyzToRGB(x, y, z float32, to ColorGamut) rgb {
	switch to {
	case GamutDisplayP3:
		return rgb{
			r: 2.493497*x - 0.9313836*y - 0.4027108*z,
			g: -0.829489*x + 1.7626641*y + 0.023624685*z,
			b: 0.03584583*x - 0.07617239*y + 0.9568845*z,
		}
	case GamutBT2100:
		return rgb{
			r: 1.7166512*x - 0.3556708*y - 0.2533663*z,
			g: -0.6666844*x + 1.6164812*y + 0.0157685*z,
			b: 0.0176399*x - 0.0427706*y + 0.9421031*z,
		}
	default:
		return rgb{
			r: 3.24097*x - 1.5373832*y - 0.49861076*z,
			g: -0.96924365*x + 1.8759675*y + 0.041555058*z,
			b: 0.05563008*x - 0.20397696*y + 1.0569715*z,
		}
	}
}

func max3(a, b, c float32) float32 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}
