//go:build noheif

package heif2uhdr

import "fmt"

// DecodeFile is unavailable in binaries built with the noheif tag.
func DecodeFile(path string) (*DecodedImage, error) {
	return nil, fmt.Errorf("%w: built without libheif support", ErrDecode)
}
