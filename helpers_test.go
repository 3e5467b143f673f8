package adaptimg

import (
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// fakeImage tracks the size an image would have and records the
// operations applied to it. Save writes a real bitmap of that size.
type fakeImage struct {
	size Box
	ops  []string
}

func (im *fakeImage) Size() Box { return im.size }

func (im *fakeImage) Resize(size Box, _ ScaleAlgorithm) error {
	im.ops = append(im.ops, "resize "+size.String())
	im.size = size
	return nil
}

func (im *fakeImage) Crop(start Point, size Box) error {
	im.ops = append(im.ops, "crop "+start.String()+" "+size.String())
	im.size = size
	return nil
}

func (im *fakeImage) Rotate(degrees int) error {
	im.ops = append(im.ops, "rotate")
	if degrees%180 != 0 {
		im.size = im.size.Swap()
	}
	return nil
}

func (im *fakeImage) FlipHorizontal() error { im.ops = append(im.ops, "fliph"); return nil }

func (im *fakeImage) FlipVertical() error { im.ops = append(im.ops, "flipv"); return nil }

func (im *fakeImage) Interlace(InterlaceMode) error { im.ops = append(im.ops, "interlace"); return nil }

func (im *fakeImage) Sharpen() error { im.ops = append(im.ops, "sharpen"); return nil }

func (im *fakeImage) UnsharpMask(_, _, _ float64) error {
	im.ops = append(im.ops, "unsharp")
	return nil
}

func (im *fakeImage) Strip() error { im.ops = append(im.ops, "strip"); return nil }

func (im *fakeImage) Save(path string, opts SaveOptions) error {
	im.ops = append(im.ops, "save "+opts.Format.String())
	return writeBitmap(path, im.size, opts.Format)
}

func (im *fakeImage) Release() {}

// fakeEngine counts opened images. Open takes delay to widen race windows.
type fakeEngine struct {
	opened atomic.Int32
	delay  time.Duration
	fail   error

	mu   sync.Mutex
	last *fakeImage
}

func (e *fakeEngine) Version() string { return "fake" }

func (e *fakeEngine) Open(path string) (Image, error) {
	e.opened.Add(1)
	time.Sleep(e.delay)
	if e.fail != nil {
		return nil, e.fail
	}
	info, err := InspectFile(path)
	if err != nil {
		return nil, err
	}
	im := &fakeImage{size: info.Size()}
	e.mu.Lock()
	e.last = im
	e.mu.Unlock()
	return im, nil
}

func (e *fakeEngine) lastOps() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	return e.last.ops
}

func writeBitmap(path string, size Box, t ImageType) error {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for x := 0; x < size.Width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch t {
	case TypeJPEG:
		err = jpeg.Encode(f, img, nil)
	case TypeGIF:
		err = gif.Encode(f, img, nil)
	case TypeBMP:
		err = bmp.Encode(f, img)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSource creates a source image that was last modified an hour ago.
func writeSource(t *testing.T, dir, name string, size Box, typ ImageType) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, writeBitmap(path, size, typ))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func inspect(t *testing.T, path string) *ImageFileInfo {
	t.Helper()
	info, err := InspectFile(path)
	require.NoError(t, err)
	return info
}
