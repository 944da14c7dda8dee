package heif2uhdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PackedImage is a repacked output buffer ready for wire serialization.
type PackedImage interface {
	io.WriterTo

	// WireSize is the exact number of bytes WriteTo produces.
	WireSize() int64
}

// P010Image is a semi-planar 10-bit 4:2:0 buffer. Every word holds its
// 10-bit sample left-shifted into the high bits (v<<6). CbCr interleaves
// chroma as Cb,Cr pairs. Words are native-endian in memory; WriteTo emits
// them little-endian regardless of platform.
type P010Image struct {
	Width  int
	Height int
	Y      []uint16
	CbCr   []uint16
}

// C420Image is a planar 8-bit 4:2:0 buffer with tightly packed rows.
type C420Image struct {
	Width        int
	Height       int
	ChromaWidth  int
	ChromaHeight int
	Y            []byte
	Cb           []byte
	Cr           []byte
}

// Repack validates img and converts it to the packed layout matching its bit
// depth: 10-bit sources become *P010Image, 8-bit sources become *C420Image.
func Repack(img *DecodedImage) (PackedImage, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	switch img.BitDepthY {
	case 10:
		return RepackP010(img)
	case 8:
		return RepackC420(img)
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedBitDepth, img.BitDepthY)
	}
}

// RepackP010 converts 10-bit planes into the P010 layout. Source samples are
// little-endian 16-bit words with the value in the low 10 bits; destination
// words are the value shifted left by 6. Destination planes have no padding.
func RepackP010(img *DecodedImage) (*P010Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.BitDepthY != 10 {
		return nil, fmt.Errorf("%w: %d bits per sample, want 10", ErrUnsupportedBitDepth, img.BitDepthY)
	}

	w, h := img.Width, img.Height
	cw, ch := img.ChromaWidth, img.ChromaHeight

	out := &P010Image{
		Width:  w,
		Height: h,
		Y:      make([]uint16, w*h),
		CbCr:   make([]uint16, 2*cw*ch),
	}

	for y := 0; w > 0 && y < h; y++ {
		row := img.Y[y*img.StrideY:]
		for x := 0; x < w; x++ {
			v := binary.LittleEndian.Uint16(row[2*x:])
			out.Y[y*w+x] = v << 6
		}
	}
	for y := 0; cw > 0 && y < ch; y++ {
		cbRow := img.Cb[y*img.StrideCb:]
		crRow := img.Cr[y*img.StrideCr:]
		for x := 0; x < cw; x++ {
			cb := binary.LittleEndian.Uint16(cbRow[2*x:])
			cr := binary.LittleEndian.Uint16(crRow[2*x:])
			out.CbCr[2*(y*cw+x)] = cb << 6
			out.CbCr[2*(y*cw+x)+1] = cr << 6
		}
	}
	return out, nil
}

// RepackC420 converts 8-bit planes into tightly packed planar form, dropping
// any stride padding.
func RepackC420(img *DecodedImage) (*C420Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.BitDepthY != 8 {
		return nil, fmt.Errorf("%w: %d bits per sample, want 8", ErrUnsupportedBitDepth, img.BitDepthY)
	}

	out := &C420Image{
		Width:        img.Width,
		Height:       img.Height,
		ChromaWidth:  img.ChromaWidth,
		ChromaHeight: img.ChromaHeight,
		Y:            packPlane(img.Y, img.StrideY, img.Width, img.Height),
		Cb:           packPlane(img.Cb, img.StrideCb, img.ChromaWidth, img.ChromaHeight),
		Cr:           packPlane(img.Cr, img.StrideCr, img.ChromaWidth, img.ChromaHeight),
	}
	return out, nil
}

func packPlane(src []byte, stride, width, height int) []byte {
	dst := make([]byte, width*height)
	for r := 0; width > 0 && r < height; r++ {
		copy(dst[r*width:(r+1)*width], src[r*stride:r*stride+width])
	}
	return dst
}

// WireSize implements PackedImage.
func (p *P010Image) WireSize() int64 {
	return int64(2*len(p.Y) + 2*len(p.CbCr))
}

// WriteTo serializes the luma plane followed by the interleaved chroma plane,
// each word least-significant byte first.
func (p *P010Image) WriteTo(w io.Writer) (int64, error) {
	var total int64
	buf := make([]byte, 0, 64*1024)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := w.Write(buf)
		total += int64(n)
		buf = buf[:0]
		return err
	}
	emit := func(words []uint16) error {
		for _, v := range words {
			buf = append(buf, byte(v), byte(v>>8))
			if len(buf) == cap(buf) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := emit(p.Y); err != nil {
		return total, err
	}
	if err := emit(p.CbCr); err != nil {
		return total, err
	}
	return total, flush()
}

// WireSize implements PackedImage.
func (c *C420Image) WireSize() int64 {
	return int64(len(c.Y) + len(c.Cb) + len(c.Cr))
}

// WriteTo serializes the Y, Cb and Cr planes in order.
func (c *C420Image) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, plane := range [][]byte{c.Y, c.Cb, c.Cr} {
		n, err := w.Write(plane)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Sample returns the 10-bit value stored at luma position (x, y).
func (p *P010Image) Sample(x, y int) uint16 {
	return p.Y[y*p.Width+x] >> 6
}

// ChromaSample returns the 10-bit Cb and Cr values for the chroma cell
// covering luma position (x, y).
func (p *P010Image) ChromaSample(x, y int) (cb, cr uint16) {
	cw := (p.Width + 1) / 2
	i := 2 * ((y/2)*cw + x/2)
	return p.CbCr[i] >> 6, p.CbCr[i+1] >> 6
}
