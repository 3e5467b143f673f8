package adaptimg

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// DefaultScaleAlgorithm is used by resize filters created without an
// explicit algorithm.
var DefaultScaleAlgorithm = ScaleUndefined

// Filter is one image operation of a FilterChain. Every filter reports the
// size it would produce from a given input size without touching pixels;
// filters that do not change the size return it unchanged. The descriptor
// is a stable textual form of the filter and its parameters, used for
// cache keys.
type Filter interface {
	Apply(img Image) error
	CalculateSize(size Box) Box
	Descriptor() string
}

// ProportionalResize scales an image keeping its aspect ratio.
//
// With min unset the image is fitted inside the target box (contain), with
// min set it covers the box (cover). Unless upscale is set, images that
// already fit the box are left alone.
type ProportionalResize struct {
	width     int
	height    Height
	min       bool
	upscale   bool
	algorithm ScaleAlgorithm
}

func NewProportionalResize(width int, height Height, min, upscale bool, algorithm ScaleAlgorithm) (*ProportionalResize, error) {
	if width < 1 || (!height.IsUnrestricted() && height.Value() < 1) {
		return nil, errors.Wrapf(ErrInvalidDefinition, "width and height must be greater than 0, got %dx%s", width, height)
	}
	if min && height.IsUnrestricted() {
		return nil, errors.Wrap(ErrInvalidDefinition, "min scaling requires a limited height")
	}
	if algorithm == ScaleUndefined {
		algorithm = DefaultScaleAlgorithm
	}
	return &ProportionalResize{width: width, height: height, min: min, upscale: upscale, algorithm: algorithm}, nil
}

func (f *ProportionalResize) Algorithm() ScaleAlgorithm {
	return f.algorithm
}

func (f *ProportionalResize) withAlgorithm(a ScaleAlgorithm) *ProportionalResize {
	f2 := *f
	f2.algorithm = a
	return &f2
}

func (f *ProportionalResize) Apply(img Image) error {
	size := img.Size()
	newSize := f.CalculateSize(size)
	if newSize == size {
		return nil
	}
	return img.Resize(newSize, f.algorithm)
}

func (f *ProportionalResize) CalculateSize(size Box) Box {
	if size.IsZero() {
		return size
	}

	if f.height.IsUnrestricted() {
		if !f.upscale && f.width >= size.Width {
			return size
		}
		return size.Widen(f.width)
	}

	target := Box{Width: f.width, Height: f.height.Value()}
	if size == target || (!f.upscale && target.Contains(size)) {
		return size
	}

	ratioW := float64(target.Width) / float64(size.Width)
	ratioH := float64(target.Height) / float64(size.Height)
	if (!f.min && ratioW <= ratioH) || (f.min && ratioW >= ratioH) {
		return size.Widen(target.Width)
	}
	return size.Heighten(target.Height)
}

func (f *ProportionalResize) Descriptor() string {
	return fmt.Sprintf("resize(%dx%s,min=%t,upscale=%t,alg=%s)", f.width, f.height, f.min, f.upscale, f.algorithm)
}

// Crop cuts a box of the given size out of the image at a fixed start
// point. Images smaller than the box are left alone unless upscale is set,
// in which case they are first scaled up to cover the box and then cropped
// at the center.
type Crop struct {
	start   Point
	size    Box
	upscale bool
}

func NewCrop(start Point, size Box, upscale bool) *Crop {
	return &Crop{start: start, size: size, upscale: upscale}
}

func (f *Crop) Apply(img Image) error {
	return applyCrop(img, f.size, f.upscale, func(Box) Point { return f.start })
}

func (f *Crop) CalculateSize(size Box) Box {
	return cropSize(size, f.size, f.upscale)
}

func (f *Crop) Descriptor() string {
	return fmt.Sprintf("crop(%s,%s,upscale=%t)", f.start, f.size, f.upscale)
}

// CropCenter crops a box of the given size from the center of the image.
type CropCenter struct {
	size    Box
	upscale bool
}

func NewCropCenter(size Box, upscale bool) *CropCenter {
	return &CropCenter{size: size, upscale: upscale}
}

func (f *CropCenter) Apply(img Image) error {
	return applyCrop(img, f.size, f.upscale, func(imgSize Box) Point {
		return centerOffset(imgSize, f.size)
	})
}

func (f *CropCenter) CalculateSize(size Box) Box {
	return cropSize(size, f.size, f.upscale)
}

func (f *CropCenter) Descriptor() string {
	return fmt.Sprintf("cropcenter(%s,upscale=%t)", f.size, f.upscale)
}

func bigEnough(size, target Box) bool {
	return size.Width >= target.Width && size.Height >= target.Height
}

func centerOffset(size, target Box) Point {
	return Point{
		X: max(0, (size.Width-target.Width)/2),
		Y: max(0, (size.Height-target.Height)/2),
	}
}

func cropSize(size, target Box, upscale bool) Box {
	if size.IsZero() || (!upscale && !bigEnough(size, target)) {
		return size
	}
	return target
}

func applyCrop(img Image, target Box, upscale bool, origin func(Box) Point) error {
	size := img.Size()
	if size.IsZero() {
		return nil
	}
	if !bigEnough(size, target) {
		if !upscale {
			return nil
		}
		cover, err := NewProportionalResize(target.Width, Fixed(target.Height), true, true, ScaleUndefined)
		if err != nil {
			return err
		}
		if err := cover.Apply(img); err != nil {
			return err
		}
		if img.Size() == target {
			return nil
		}
		return img.Crop(centerOffset(img.Size(), target), target)
	}
	if size == target {
		return nil
	}
	pt := origin(size)
	pt.X = min(max(0, pt.X), size.Width-target.Width)
	pt.Y = min(max(0, pt.Y), size.Height-target.Height)
	return img.Crop(pt, target)
}

// FixOrientation rotates and flips an image according to its EXIF
// orientation so that it displays upright.
type FixOrientation struct {
	orientation int
}

func NewFixOrientation(orientation int) *FixOrientation {
	return &FixOrientation{orientation: orientation}
}

func (f *FixOrientation) Apply(img Image) error {
	switch f.orientation {
	case 2:
		return img.FlipHorizontal()
	case 3:
		return img.Rotate(180)
	case 4:
		return img.FlipVertical()
	case 5:
		if err := img.Rotate(90); err != nil {
			return err
		}
		return img.FlipHorizontal()
	case 6:
		return img.Rotate(90)
	case 7:
		if err := img.Rotate(-90); err != nil {
			return err
		}
		return img.FlipHorizontal()
	case 8:
		return img.Rotate(-90)
	}
	return nil
}

func (f *FixOrientation) CalculateSize(size Box) Box {
	if f.orientation >= 5 && f.orientation <= 8 {
		return size.Swap()
	}
	return size
}

func (f *FixOrientation) Descriptor() string {
	return fmt.Sprintf("orientation(%d)", f.orientation)
}

type Interlace struct {
	mode InterlaceMode
}

func NewInterlace(mode InterlaceMode) *Interlace {
	return &Interlace{mode: mode}
}

func (f *Interlace) Apply(img Image) error {
	return img.Interlace(f.mode)
}

func (f *Interlace) CalculateSize(size Box) Box {
	return size
}

func (f *Interlace) Descriptor() string {
	return fmt.Sprintf("interlace(%s)", f.mode)
}

// UnsharpMask sharpens an image with parameters as known from GIMP or
// Photoshop.
type UnsharpMask struct {
	radius    float64
	amount    float64
	threshold float64
	sigma     float64
}

const unsharpLevels = 255

// NewUnsharpMask takes the radius in pixels, the amount as a fraction
// (1 = 100%, values above 10 are read as percent) and the threshold as
// level 0..255 or fraction 0..1.
func NewUnsharpMask(radius, amount, threshold float64) *UnsharpMask {
	if amount > 10 {
		amount = amount / 100
	}
	sigma := radius
	if radius >= 1 {
		sigma = math.Sqrt(radius)
	}
	if threshold >= 1 && threshold <= unsharpLevels {
		threshold = threshold / unsharpLevels
	}
	return &UnsharpMask{radius: radius, amount: amount, threshold: threshold, sigma: sigma}
}

func (f *UnsharpMask) Apply(img Image) error {
	return img.UnsharpMask(f.sigma, f.amount, f.threshold)
}

func (f *UnsharpMask) CalculateSize(size Box) Box {
	return size
}

func (f *UnsharpMask) Descriptor() string {
	return fmt.Sprintf("unsharp(%g,%g,%g)", f.radius, f.amount, f.threshold)
}

type Sharpen struct{}

func NewSharpen() *Sharpen {
	return &Sharpen{}
}

func (f *Sharpen) Apply(img Image) error {
	return img.Sharpen()
}

func (f *Sharpen) CalculateSize(size Box) Box {
	return size
}

func (f *Sharpen) Descriptor() string {
	return "sharpen"
}

// Strip removes metadata such as EXIF and color profiles.
type Strip struct{}

func NewStrip() *Strip {
	return &Strip{}
}

func (f *Strip) Apply(img Image) error {
	return img.Strip()
}

func (f *Strip) CalculateSize(size Box) Box {
	return size
}

func (f *Strip) Descriptor() string {
	return "strip"
}
