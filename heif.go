//go:build !noheif

package heif2uhdr

import (
	"fmt"

	"github.com/strukturag/libheif/go/heif"
)

// DecodeFile decodes the single image of an HEIF/AVIF container into planar
// YCbCr 4:2:0 buffers. The container must hold exactly one top-level image.
// Native context/handle/image resources are scoped to this call and released
// by the binding's finalizers; the returned planes are Go-owned copies.
func DecodeFile(path string) (*DecodedImage, error) {
	ctx, err := heif.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextAlloc, err)
	}
	if err := ctx.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerRead, err)
	}
	switch n := ctx.GetNumberOfTopLevelImages(); {
	case n == 0:
		return nil, ErrNoImages
	case n > 1:
		return nil, fmt.Errorf("%w: %d top-level images", ErrMultipleImages, n)
	}
	handle, err := ctx.GetPrimaryImageHandle()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageHandle, err)
	}
	img, err := handle.DecodeImage(heif.ColorspaceYCbCr, heif.Chroma420, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return extractPlanes(img)
}

func extractPlanes(img *heif.Image) (*DecodedImage, error) {
	y, err := img.GetPlane(heif.ChannelY)
	if err != nil {
		return nil, fmt.Errorf("%w: luma plane: %v", ErrDecode, err)
	}
	cb, err := img.GetPlane(heif.ChannelCb)
	if err != nil {
		return nil, fmt.Errorf("%w: cb plane: %v", ErrDecode, err)
	}
	cr, err := img.GetPlane(heif.ChannelCr)
	if err != nil {
		return nil, fmt.Errorf("%w: cr plane: %v", ErrDecode, err)
	}

	out := &DecodedImage{
		Width:        img.GetWidth(heif.ChannelY),
		Height:       img.GetHeight(heif.ChannelY),
		ChromaWidth:  img.GetWidth(heif.ChannelCb),
		ChromaHeight: img.GetHeight(heif.ChannelCb),
		BitDepthY:    img.GetBitsPerPixelRange(heif.ChannelY),
		BitDepthCb:   img.GetBitsPerPixelRange(heif.ChannelCb),
		BitDepthCr:   img.GetBitsPerPixelRange(heif.ChannelCr),
		StrideY:      y.Stride,
		StrideCb:     cb.Stride,
		StrideCr:     cr.Stride,
		Y:            y.Plane,
		Cb:           cb.Plane,
		Cr:           cr.Plane,
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
