package heif2uhdr

import "errors"

// Failure kinds for the conversion pipeline. Pipeline functions wrap these
// with context via fmt.Errorf("...: %w", ...); callers classify with errors.Is.
var (
	ErrInputNotFound       = errors.New("input file not found")
	ErrContextAlloc        = errors.New("heif context allocation failed")
	ErrContainerRead       = errors.New("heif container read failed")
	ErrNoImages            = errors.New("container has no images")
	ErrMultipleImages      = errors.New("container has more than one image")
	ErrImageHandle         = errors.New("primary image handle fetch failed")
	ErrDecode              = errors.New("image decode failed")
	ErrOutputOpen          = errors.New("output file open failed")
	ErrInvalidImage        = errors.New("invalid decoded image")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrEncode              = errors.New("gain-map jpeg encode failed")
	ErrWriteOutput         = errors.New("output write failed")
)
