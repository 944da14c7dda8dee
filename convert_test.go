package heif2uhdr

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOutputPath(t *testing.T) {
	cases := []struct {
		in       string
		mode     OutputMode
		bitDepth int
		want     string
	}{
		{"photo.hif", OutputGainMapJPEG, 10, "photo.uhdr.jpg"},
		{"photo.HIF", OutputRawP010, 10, "photo.p010"},
		{"photo.avif", OutputRawC420, 8, "photo.c420"},
		{"photo.heic", OutputRaw, 10, "photo.p010"},
		{"photo.heic", OutputRaw, 8, "photo.c420"},
		{"dir/photo.hif", OutputGainMapJPEG, 10, "dir/photo.uhdr.jpg"},
		{"noext", OutputGainMapJPEG, 10, "noext.uhdr.jpg"},
	}
	for _, tc := range cases {
		if got := DefaultOutputPath(tc.in, tc.mode, tc.bitDepth); got != filepath.FromSlash(tc.want) && got != tc.want {
			t.Fatalf("DefaultOutputPath(%q, %d, %d) = %q, want %q", tc.in, tc.mode, tc.bitDepth, got, tc.want)
		}
	}
}

func TestRawModeFor(t *testing.T) {
	if m, err := RawModeFor(10); err != nil || m != OutputRawP010 {
		t.Fatalf("10-bit: %v, %v", m, err)
	}
	if m, err := RawModeFor(8); err != nil || m != OutputRawC420 {
		t.Fatalf("8-bit: %v, %v", m, err)
	}
	if _, err := RawModeFor(12); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Fatalf("12-bit: %v", err)
	}
}

func TestRepackFor(t *testing.T) {
	ten := new10BitImage(4, 4, func(x, y int) uint16 { return 500 })
	eight := new8BitImage(4, 4, func(x, y int) byte { return 100 })

	p, err := repackFor(ten, OutputGainMapJPEG)
	if err != nil {
		t.Fatalf("10-bit jpeg mode: %v", err)
	}
	if _, ok := p.(*P010Image); !ok {
		t.Fatalf("packed as %T, want *P010Image", p)
	}

	p, err = repackFor(ten, OutputRaw)
	if err != nil {
		t.Fatalf("10-bit auto raw: %v", err)
	}
	if _, ok := p.(*P010Image); !ok {
		t.Fatalf("auto raw packed as %T, want *P010Image", p)
	}

	p, err = repackFor(eight, OutputRaw)
	if err != nil {
		t.Fatalf("8-bit auto raw: %v", err)
	}
	if _, ok := p.(*C420Image); !ok {
		t.Fatalf("auto raw packed as %T, want *C420Image", p)
	}

	// Gain-map JPEG needs a 10-bit source.
	if _, err := repackFor(eight, OutputGainMapJPEG); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Fatalf("8-bit jpeg mode: %v", err)
	}
	if _, err := repackFor(ten, OutputRawC420); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Fatalf("10-bit c420 mode: %v", err)
	}
	if _, err := repackFor(eight, OutputRawP010); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Fatalf("8-bit p010 mode: %v", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "out.bin")
	err := writeFileAtomic(path, func(f *os.File) error {
		_, werr := f.Write([]byte("payload"))
		return werr
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Fatalf("read back: %q, %v", data, err)
	}

	// A failed write must not leave a partial file behind.
	failPath := filepath.Join(dir, "fail.bin")
	err = writeFileAtomic(failPath, func(f *os.File) error {
		_, _ = f.Write([]byte("partial"))
		return errors.New("disk full")
	})
	if !errors.Is(err, ErrWriteOutput) {
		t.Fatalf("err = %v, want ErrWriteOutput", err)
	}
	if _, err := os.Stat(failPath); !os.IsNotExist(err) {
		t.Fatal("partial output left behind")
	}

	// Unwritable destination.
	err = writeFileAtomic(filepath.Join(dir, "missing", "out.bin"), func(f *os.File) error { return nil })
	if !errors.Is(err, ErrOutputOpen) {
		t.Fatalf("err = %v, want ErrOutputOpen", err)
	}
}

type oddPacked struct{}

func (oddPacked) WriteTo(io.Writer) (int64, error) { return 0, nil }
func (oddPacked) WireSize() int64                  { return 0 }

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()

	src := new8BitImage(4, 4, func(x, y int) byte { return byte(x + y) })
	c, err := RepackC420(src)
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	path := filepath.Join(dir, "out.c420")
	if err := writeOutput(path, c, OutputRawC420, DefaultEncodeOptions()); err != nil {
		t.Fatalf("write: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if fi.Size() != c.WireSize() {
		t.Fatalf("output size %d, want %d", fi.Size(), c.WireSize())
	}

	// An unknown packed layout must fail loudly, not report success.
	err = writeOutput(filepath.Join(dir, "odd.bin"), oddPacked{}, OutputRawC420, DefaultEncodeOptions())
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("unknown layout: %v, want ErrEncode", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "odd.bin")); !os.IsNotExist(err) {
		t.Fatal("file created for unknown layout")
	}
}

func TestConvertFileMissingInput(t *testing.T) {
	err := ConvertFile(filepath.Join(t.TempDir(), "nope.hif"), "", OutputGainMapJPEG, DefaultEncodeOptions(), nil)
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("err = %v, want ErrInputNotFound", err)
	}
}

func TestProgressNilSafe(t *testing.T) {
	var p *Progress
	p.start(3)
	p.step(1)
	p.done()

	// Partially populated callbacks are fine too.
	steps := 0
	p = &Progress{Step: func(int) { steps++ }}
	p.start(3)
	p.step(1)
	p.step(2)
	p.done()
	if steps != 2 {
		t.Fatalf("steps = %d, want 2", steps)
	}
}
