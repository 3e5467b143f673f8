package imagex

import (
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pressly/adaptimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.NRGBA{R: 255, A: 255}

// writeImage saves a w x h gray image with a red top left pixel.
func writeImage(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	img.SetNRGBA(0, 0, red)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func open(t *testing.T, path string) *Image {
	t.Helper()
	im, err := Engine{}.Open(path)
	require.NoError(t, err)
	return im.(*Image)
}

func TestOpenAndResize(t *testing.T) {
	im := open(t, writeImage(t, "a.png", 600, 200))
	defer im.Release()
	assert.Equal(t, adaptimg.NewBox(600, 200), im.Size())

	assert.NoError(t, im.Resize(adaptimg.NewBox(300, 100), adaptimg.ScaleUndefined))
	assert.Equal(t, adaptimg.NewBox(300, 100), im.Size())

	assert.NoError(t, im.Resize(adaptimg.NewBox(30, 10), adaptimg.ScaleNearestNeighbor))
	assert.Equal(t, adaptimg.NewBox(30, 10), im.Size())

	assert.Error(t, im.Resize(adaptimg.ZeroBox, adaptimg.ScaleUndefined))
}

func TestOpenErrors(t *testing.T) {
	_, err := Engine{}.Open(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, adaptimg.ErrImageUnreadable)
}

func TestCrop(t *testing.T) {
	im := open(t, writeImage(t, "a.png", 600, 200))
	assert.NoError(t, im.Crop(adaptimg.Point{X: 10, Y: 20}, adaptimg.NewBox(100, 50)))
	assert.Equal(t, adaptimg.NewBox(100, 50), im.Size())
}

func TestRotateClockwise(t *testing.T) {
	im := open(t, writeImage(t, "a.png", 3, 2))

	assert.NoError(t, im.Rotate(90))
	assert.Equal(t, adaptimg.NewBox(2, 3), im.Size())
	assert.Equal(t, red, im.img.NRGBAAt(1, 0))

	assert.NoError(t, im.Rotate(-90))
	assert.Equal(t, adaptimg.NewBox(3, 2), im.Size())
	assert.Equal(t, red, im.img.NRGBAAt(0, 0))

	assert.NoError(t, im.Rotate(180))
	assert.Equal(t, red, im.img.NRGBAAt(2, 1))
}

func TestFlip(t *testing.T) {
	im := open(t, writeImage(t, "a.png", 3, 2))

	assert.NoError(t, im.FlipHorizontal())
	assert.Equal(t, red, im.img.NRGBAAt(2, 0))

	assert.NoError(t, im.FlipVertical())
	assert.Equal(t, red, im.img.NRGBAAt(2, 1))
}

func TestUnsharpMaskKeepsFlatAreas(t *testing.T) {
	img := imaging.New(20, 20, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	out := unsharp(img, imaging.Blur(img, 1), 1.5, 0)
	assert.Equal(t, img.Pix, out.Pix)

	img.SetNRGBA(10, 10, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	out = unsharp(img, imaging.Blur(img, 1), 1.5, 0)
	assert.Greater(t, out.NRGBAAt(10, 10).R, uint8(200))

	// a high threshold leaves small differences alone
	out = unsharp(img, imaging.Blur(img, 1), 1.5, 1)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	im := open(t, writeImage(t, "a.png", 64, 32))

	for _, typ := range []adaptimg.ImageType{adaptimg.TypeJPEG, adaptimg.TypePNG, adaptimg.TypeGIF, adaptimg.TypeBMP} {
		path := filepath.Join(dir, "out."+typ.Extension())
		require.NoError(t, im.Save(path, adaptimg.SaveOptions{Format: typ, JPEGQuality: 70, PNGCompressionLevel: 9}))

		info, err := adaptimg.InspectFile(path)
		require.NoError(t, err)
		assert.Equal(t, typ, info.Type())
		assert.Equal(t, adaptimg.NewBox(64, 32), info.Size())
	}

	err := im.Save(filepath.Join(dir, "out.webp"), adaptimg.SaveOptions{Format: adaptimg.TypeWEBP})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReleased(t *testing.T) {
	im := open(t, writeImage(t, "a.png", 10, 10))
	im.Release()
	assert.True(t, im.Released())
	assert.Equal(t, adaptimg.ZeroBox, im.Size())
	assert.ErrorIs(t, im.Rotate(90), adaptimg.ErrEngineReleased)
	assert.ErrorIs(t, im.Save("x.png", adaptimg.SaveOptions{Format: adaptimg.TypePNG}), adaptimg.ErrEngineReleased)
}

func TestPNGLevel(t *testing.T) {
	assert.Equal(t, png.NoCompression, pngLevel(0))
	assert.Equal(t, png.BestSpeed, pngLevel(2))
	assert.Equal(t, png.DefaultCompression, pngLevel(5))
	assert.Equal(t, png.BestCompression, pngLevel(7))
}

func TestResizerWithEngine(t *testing.T) {
	srcPath := writeImage(t, "photo.jpg", 600, 200)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(srcPath, old, old))
	plain, err := adaptimg.InspectFile(srcPath)
	require.NoError(t, err)
	src := adaptimg.NewImageFileInfo(srcPath, 600, 200, adaptimg.TypeJPEG, plain.ModTime(), 6)

	r := adaptimg.NewImageResizer(Engine{}, adaptimg.NewBasedirPathGenerator(t.TempDir()))
	r.LockDir = t.TempDir()
	def := adaptimg.MustImageResizeDefinition(300, adaptimg.Fixed(300), adaptimg.ModeMax, false)
	def.AddFilter(adaptimg.NewUnsharpMask(0.5, 80, 3), 0)
	def.AddPostFilter(adaptimg.NewStrip(), 0)

	res, err := r.Resize(context.Background(), def, src, true, nil)
	require.NoError(t, err)
	assert.Equal(t, adaptimg.NewBox(100, 300), res.Size())
	assert.Equal(t, adaptimg.TypeJPEG, res.Type())
	assert.Equal(t, 0, res.Orientation())
}
