package heif2uhdr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Pipeline stages reported through Progress.
const (
	stageDecoded = iota + 1
	stageRepacked
	stageWritten
)

// ConvertFile runs the whole pipeline for one image: decode, repack, write.
// An empty outPath derives the output name from inPath. The output file is
// never left partially written: raw-path write failures remove the file, and
// the JPEG path only writes a fully assembled buffer.
func ConvertFile(inPath, outPath string, mode OutputMode, opt EncodeOptions, prog *Progress) error {
	prog.start(stageWritten)

	if _, err := os.Stat(inPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, inPath)
	}

	img, err := DecodeFile(inPath)
	if err != nil {
		return err
	}
	prog.step(stageDecoded)

	packed, err := repackFor(img, mode)
	if err != nil {
		return err
	}
	prog.step(stageRepacked)

	if outPath == "" {
		outPath = DefaultOutputPath(inPath, mode, img.BitDepthY)
	}

	if err := writeOutput(outPath, packed, mode, opt); err != nil {
		return err
	}

	prog.step(stageWritten)
	prog.done()
	return nil
}

// writeOutput serializes a packed buffer to outPath, encoding it as a
// gain-map JPEG first when the mode asks for one.
func writeOutput(outPath string, packed PackedImage, mode OutputMode, opt EncodeOptions) error {
	switch p := packed.(type) {
	case *P010Image:
		if mode == OutputGainMapJPEG {
			data, err := EncodeGainMapJPEG(p, opt)
			if err != nil {
				return err
			}
			return writeFileAtomic(outPath, func(f *os.File) error {
				_, werr := f.Write(data)
				return werr
			})
		}
		return writeFileAtomic(outPath, func(f *os.File) error {
			_, werr := p.WriteTo(f)
			return werr
		})
	case *C420Image:
		return writeFileAtomic(outPath, func(f *os.File) error {
			_, werr := p.WriteTo(f)
			return werr
		})
	default:
		return fmt.Errorf("%w: unhandled packed layout %T", ErrEncode, packed)
	}
}

// repackFor selects the repack algorithm for the requested output mode and
// validates that the source bit depth can serve it.
func repackFor(img *DecodedImage, mode OutputMode) (PackedImage, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if mode == OutputRaw {
		m, err := RawModeFor(img.BitDepthY)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	switch mode {
	case OutputGainMapJPEG, OutputRawP010:
		if img.BitDepthY != 10 {
			return nil, fmt.Errorf("%w: %d bits per sample, want 10", ErrUnsupportedBitDepth, img.BitDepthY)
		}
		return RepackP010(img)
	case OutputRawC420:
		if img.BitDepthY != 8 {
			return nil, fmt.Errorf("%w: %d bits per sample, want 8", ErrUnsupportedBitDepth, img.BitDepthY)
		}
		return RepackC420(img)
	default:
		return nil, fmt.Errorf("%w: unknown output mode %d", ErrEncode, mode)
	}
}

// RawModeFor returns the raw output mode matching a source bit depth.
func RawModeFor(bitDepth int) (OutputMode, error) {
	switch bitDepth {
	case 10:
		return OutputRawP010, nil
	case 8:
		return OutputRawC420, nil
	default:
		return 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedBitDepth, bitDepth)
	}
}

// DefaultOutputPath derives the output file name from the input by replacing
// its extension: .p010 or .c420 for raw modes, .uhdr.jpg for the JPEG mode.
func DefaultOutputPath(inPath string, mode OutputMode, bitDepth int) string {
	base := strings.TrimSuffix(inPath, filepath.Ext(inPath))
	if mode == OutputRaw {
		if bitDepth == 8 {
			mode = OutputRawC420
		} else {
			mode = OutputRawP010
		}
	}
	switch mode {
	case OutputRawP010:
		return base + ".p010"
	case OutputRawC420:
		return base + ".c420"
	default:
		return base + ".uhdr.jpg"
	}
}

// writeFileAtomic creates path, runs write against it, and removes the file
// when the write or close fails so no partial output survives.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputOpen, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}
