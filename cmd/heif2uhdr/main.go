package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vearutop/heif2uhdr"
)

// Exit codes, one per failure kind.
const (
	exitOK = iota
	exitArgument
	exitInputNotFound
	exitContextAlloc
	exitContainerRead
	exitNoImages
	exitMultipleImages
	exitImageHandle
	exitDecode
	exitOutputOpen
	exitInvalidImage
	exitUnsupportedDepth
	exitEncode
	exitWrite
)

func main() {
	fs := flag.NewFlagSet("heif2uhdr", flag.ContinueOnError)
	rawOut := fs.Bool("p", false, "write raw YUV (P010 for 10-bit sources, C420 for 8-bit) instead of UltraHDR JPEG")
	gamut := fs.Int("c", 2, "color gamut: 0=BT.709, 1=Display P3, 2=BT.2100")
	rng := fs.Int("r", 1, "color range: 0=limited, 1=full")
	transfer := fs.Int("t", 1, "transfer function: 0=linear, 1=HLG, 2=PQ, 3=sRGB")
	quality := fs.Int("q", 95, "JPEG quality for base and gain-map images")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: heif2uhdr [flags] input.hif [output]")
		fmt.Fprintln(os.Stderr, "Converts a single-image HEIF/AVIF file to an UltraHDR JPEG or a raw YUV dump.")
		fs.PrintDefaults()
	}
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(exitArgument)
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		os.Exit(exitArgument)
	}
	inPath := fs.Arg(0)
	outPath := fs.Arg(1)

	opt := heif2uhdr.DefaultEncodeOptions()
	if *gamut < 0 || *gamut > 2 || *rng < 0 || *rng > 1 || *transfer < 0 || *transfer > 3 {
		fmt.Fprintln(os.Stderr, "error: gamut/range/transfer value out of range")
		os.Exit(exitArgument)
	}
	if *quality < 1 || *quality > 100 {
		fmt.Fprintln(os.Stderr, "error: quality must be 1..100")
		os.Exit(exitArgument)
	}
	opt.Gamut = heif2uhdr.ColorGamut(*gamut)
	opt.Range = heif2uhdr.ColorRange(*rng)
	opt.Transfer = heif2uhdr.ColorTransfer(*transfer)
	opt.Quality = *quality
	opt.GainMapQuality = *quality

	mode := heif2uhdr.OutputGainMapJPEG
	if *rawOut {
		mode = heif2uhdr.OutputRaw
	}

	if err := heif2uhdr.ConvertFile(inPath, outPath, mode, opt, progress(*quiet)); err != nil {
		fail(err)
	}
}

// progress builds a per-invocation reporter printing percentages to stderr.
func progress(quiet bool) *heif2uhdr.Progress {
	if quiet {
		return nil
	}
	total := 0
	return &heif2uhdr.Progress{
		Start: func(t int) { total = t },
		Step: func(done int) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\r%3d%%", done*100/total)
			}
		},
		Done: func() { fmt.Fprintln(os.Stderr) },
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, heif2uhdr.ErrInputNotFound):
		return exitInputNotFound
	case errors.Is(err, heif2uhdr.ErrContextAlloc):
		return exitContextAlloc
	case errors.Is(err, heif2uhdr.ErrContainerRead):
		return exitContainerRead
	case errors.Is(err, heif2uhdr.ErrNoImages):
		return exitNoImages
	case errors.Is(err, heif2uhdr.ErrMultipleImages):
		return exitMultipleImages
	case errors.Is(err, heif2uhdr.ErrImageHandle):
		return exitImageHandle
	case errors.Is(err, heif2uhdr.ErrDecode):
		return exitDecode
	case errors.Is(err, heif2uhdr.ErrOutputOpen):
		return exitOutputOpen
	case errors.Is(err, heif2uhdr.ErrInvalidImage):
		return exitInvalidImage
	case errors.Is(err, heif2uhdr.ErrUnsupportedBitDepth):
		return exitUnsupportedDepth
	case errors.Is(err, heif2uhdr.ErrEncode):
		return exitEncode
	case errors.Is(err, heif2uhdr.ErrWriteOutput):
		return exitWrite
	default:
		return 1
	}
}
