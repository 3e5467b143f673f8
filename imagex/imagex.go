package imagex

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/rcrowley/go-metrics"
)

var ErrUnsupportedFormat = errors.New("imagex: unsupported output format")

var filters = map[adaptimg.ScaleAlgorithm]imaging.ResampleFilter{
	adaptimg.ScaleUndefined:       imaging.Lanczos,
	adaptimg.ScaleNearestNeighbor: imaging.NearestNeighbor,
	adaptimg.ScaleBox:             imaging.Box,
	adaptimg.ScaleLinear:          imaging.Linear,
	adaptimg.ScaleCatmullRom:      imaging.CatmullRom,
	adaptimg.ScaleMitchell:        imaging.MitchellNetravali,
	adaptimg.ScaleLanczos:         imaging.Lanczos,
}

// Engine decodes and encodes images in pure Go. Animated GIFs are reduced
// to their first frame.
type Engine struct{}

func (ng Engine) Version() string {
	return "imaging"
}

func (ng Engine) Open(path string) (adaptimg.Image, error) {
	m := metrics.GetOrRegisterTimer("fn.imagex.Open", nil)
	defer m.UpdateSince(time.Now())

	src, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(adaptimg.ErrImageUnreadable, "%s: %v", path, err)
	}
	return &Image{img: imaging.Clone(src)}, nil
}

type Image struct {
	img       *image.NRGBA
	interlace adaptimg.InterlaceMode
}

func (i *Image) Released() bool {
	return i.img == nil
}

func (i *Image) Release() {
	i.img = nil
}

func (i *Image) Size() adaptimg.Box {
	if i.Released() {
		return adaptimg.ZeroBox
	}
	b := i.img.Bounds()
	return adaptimg.NewBox(b.Dx(), b.Dy())
}

func (i *Image) Resize(size adaptimg.Box, algorithm adaptimg.ScaleAlgorithm) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	if size.IsZero() {
		return errors.Errorf("imagex: invalid size %s", size)
	}
	f, ok := filters[algorithm]
	if !ok {
		f = imaging.Lanczos
	}
	i.img = imaging.Resize(i.img, size.Width, size.Height, f)
	return nil
}

func (i *Image) Crop(start adaptimg.Point, size adaptimg.Box) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	r := image.Rect(start.X, start.Y, start.X+size.Width, start.Y+size.Height)
	i.img = imaging.Crop(i.img, r)
	return nil
}

// Rotate turns the image clockwise.
func (i *Image) Rotate(degrees int) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	switch ((degrees % 360) + 360) % 360 {
	case 0:
	case 90:
		i.img = imaging.Rotate270(i.img)
	case 180:
		i.img = imaging.Rotate180(i.img)
	case 270:
		i.img = imaging.Rotate90(i.img)
	default:
		i.img = imaging.Rotate(i.img, -float64(degrees), color.Transparent)
	}
	return nil
}

func (i *Image) FlipHorizontal() error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	i.img = imaging.FlipH(i.img)
	return nil
}

func (i *Image) FlipVertical() error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	i.img = imaging.FlipV(i.img)
	return nil
}

// Interlace is remembered only, the Go encoders write baseline images.
func (i *Image) Interlace(mode adaptimg.InterlaceMode) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	i.interlace = mode
	return nil
}

func (i *Image) Sharpen() error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	i.img = imaging.Sharpen(i.img, 1.0)
	return nil
}

func (i *Image) UnsharpMask(sigma, amount, threshold float64) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	if sigma <= 0 || amount <= 0 {
		return nil
	}
	i.img = unsharp(i.img, imaging.Blur(i.img, sigma), amount, threshold)
	return nil
}

// Strip is a no-op: decoded images carry no metadata and nothing is
// written back on save.
func (i *Image) Strip() error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	return nil
}

func (i *Image) Save(path string, opts adaptimg.SaveOptions) error {
	if i.Released() {
		return adaptimg.ErrEngineReleased
	}
	m := metrics.GetOrRegisterTimer("fn.imagex.Save", nil)
	defer m.UpdateSince(time.Now())

	var (
		format imaging.Format
		eo     []imaging.EncodeOption
	)
	switch opts.Format {
	case adaptimg.TypeJPEG:
		format = imaging.JPEG
		q := opts.JPEGQuality
		if q <= 0 || q > 100 {
			q = adaptimg.DefaultJPEGQuality
		}
		eo = append(eo, imaging.JPEGQuality(q))
	case adaptimg.TypePNG:
		format = imaging.PNG
		eo = append(eo, imaging.PNGCompressionLevel(pngLevel(opts.PNGCompressionLevel)))
	case adaptimg.TypeGIF:
		format = imaging.GIF
	case adaptimg.TypeBMP:
		format = imaging.BMP
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "%s", opts.Format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, i.img, format, eo...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pngLevel maps a zlib style level 0..9 to the levels of image/png.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	}
	return png.BestCompression
}

// unsharp adds amount times the difference between img and its blurred
// version, for channels differing by at least threshold (0..1).
func unsharp(img, blurred *image.NRGBA, amount, threshold float64) *image.NRGBA {
	dst := imaging.Clone(img)
	limit := threshold * 255
	for p := 0; p < len(dst.Pix); p += 4 {
		for c := 0; c < 3; c++ {
			orig := float64(img.Pix[p+c])
			diff := orig - float64(blurred.Pix[p+c])
			if diff < limit && -diff < limit {
				continue
			}
			dst.Pix[p+c] = clamp(orig + amount*diff)
		}
	}
	return dst
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}
