package adaptimg

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Mode is the fit mode of an ImageResizeDefinition.
type Mode string

const (
	ModeMax  Mode = "max"  // fit inside the box
	ModeMin  Mode = "min"  // cover the box
	ModeCrop Mode = "crop" // cover the box, then crop it from the center
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeMax, nil
	case ModeMax, ModeMin, ModeCrop:
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidDefinition, "unknown mode %q", s)
}

// ImageResizeDefinition describes a size an image should be scaled to,
// together with the fit mode, upscale policy, additional filters and the
// output types of the derivatives.
//
// A definition may be modified until it is handed to a resizer; from then
// on it is shared read-only.
type ImageResizeDefinition struct {
	width   int
	height  Height
	mode    Mode
	upscale bool

	resizeFilter *ProportionalResize
	resize       *FilterChain
	post         *FilterChain
	outputTypes  *OutputTypeMap

	hash atomic.Pointer[string]
}

// NewImageResizeDefinition creates a definition for the box width x height.
// A fixed height of 0 means the same as width. An unrestricted height is
// only allowed in ModeMax.
func NewImageResizeDefinition(width int, height Height, mode Mode, upscale bool) (*ImageResizeDefinition, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if !height.IsUnrestricted() && height.Value() == 0 {
		height = Fixed(width)
	}
	if mode != ModeMax && height.IsUnrestricted() {
		return nil, errors.Wrap(ErrInvalidDefinition, `unlimited height is only allowed in "max" mode`)
	}
	if width < 1 || (!height.IsUnrestricted() && height.Value() < 1) {
		return nil, errors.Wrapf(ErrInvalidDefinition, "width and height must be greater than 0, got %dx%s", width, height)
	}

	min := mode == ModeMin || mode == ModeCrop
	rf, err := NewProportionalResize(width, height, min, upscale, ScaleUndefined)
	if err != nil {
		return nil, err
	}

	d := &ImageResizeDefinition{
		width:        width,
		height:       height,
		mode:         mode,
		upscale:      upscale,
		resizeFilter: rf,
		resize:       NewFilterChain(rf),
		post:         NewFilterChain(),
		outputTypes:  NewOutputTypeMap(),
	}
	if mode == ModeCrop {
		d.resize.Add(NewCropCenter(Box{Width: width, Height: height.Value()}, upscale), 0)
	}
	return d, nil
}

// MustImageResizeDefinition is like NewImageResizeDefinition but panics on
// an invalid definition.
func MustImageResizeDefinition(width int, height Height, mode Mode, upscale bool) *ImageResizeDefinition {
	d, err := NewImageResizeDefinition(width, height, mode, upscale)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *ImageResizeDefinition) Width() int {
	return d.width
}

func (d *ImageResizeDefinition) Height() Height {
	return d.height
}

func (d *ImageResizeDefinition) Mode() Mode {
	return d.mode
}

func (d *ImageResizeDefinition) Upscale() bool {
	return d.upscale
}

// CalculateSize returns the size an image of the given size will have
// after resizing. Post filters never change the size.
func (d *ImageResizeDefinition) CalculateSize(size Box) Box {
	return d.resize.CalculateSize(size)
}

// AddFilter adds a filter to the resize transformation, e.g. for
// sharpening. It only runs when the image really gets resized.
func (d *ImageResizeDefinition) AddFilter(f Filter, priority int) *ImageResizeDefinition {
	d.resize.Add(f, priority)
	d.hash.Store(nil)
	return d
}

// AddPostFilter adds a filter that always runs, even if the image keeps
// its size, e.g. Strip.
func (d *ImageResizeDefinition) AddPostFilter(f Filter, priority int) *ImageResizeDefinition {
	d.post.Add(f, priority)
	return d
}

func (d *ImageResizeDefinition) ScaleAlgorithm() ScaleAlgorithm {
	return d.resizeFilter.Algorithm()
}

func (d *ImageResizeDefinition) SetScaleAlgorithm(a ScaleAlgorithm) *ImageResizeDefinition {
	if a == ScaleUndefined {
		a = DefaultScaleAlgorithm
	}
	rf := d.resizeFilter.withAlgorithm(a)
	d.resize.replace(d.resizeFilter, rf)
	d.resizeFilter = rf
	d.hash.Store(nil)
	return d
}

func (d *ImageResizeDefinition) OutputTypeMap() *OutputTypeMap {
	return d.outputTypes
}

func (d *ImageResizeDefinition) SetOutputTypeMap(m *OutputTypeMap) *ImageResizeDefinition {
	d.outputTypes = m
	return d
}

// ResizeTransformation returns the filters executed when the image gets
// resized. The chain must not be modified.
func (d *ImageResizeDefinition) ResizeTransformation() *FilterChain {
	return d.resize
}

// PostTransformation returns the filters always executed after resizing.
// The chain must not be modified.
func (d *ImageResizeDefinition) PostTransformation() *FilterChain {
	return d.post
}

// TransformationHash identifies the resize transformation. It is computed
// on first use and kept until the transformation changes.
func (d *ImageResizeDefinition) TransformationHash() string {
	if h := d.hash.Load(); h != nil {
		return *h
	}
	h := hashString(d.resize.Descriptor())
	d.hash.Store(&h)
	return h
}

func (d *ImageResizeDefinition) String() string {
	return fmt.Sprintf("%dx%s(%s,upscale=%t)", d.width, d.height, d.mode, d.upscale)
}
