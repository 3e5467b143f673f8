package adaptimg

import (
	"github.com/pkg/errors"
)

const (
	VERSION = "1.0.0"
)

var (
	ErrImageNotFound     = errors.New("image file not found or not readable")
	ErrImageUnreadable   = errors.New("image file is no readable bitmap")
	ErrTypeNotSupported  = errors.New("image type not supported")
	ErrInvalidDefinition = errors.New("invalid image resize definition")
	ErrGenerationFailed  = errors.New("could not generate image")
	ErrLockTimeout       = errors.Wrap(ErrGenerationFailed, "lock not acquired")
	ErrEngineReleased    = errors.New("image has been released")
)

// Engine is the raster backend used to execute filter chains.
type Engine interface {
	Version() string
	Open(path string) (Image, error)
}

// Image is an opened raster image. All operations modify the image in place.
type Image interface {
	Size() Box

	Resize(size Box, algorithm ScaleAlgorithm) error
	Crop(start Point, size Box) error
	Rotate(degrees int) error
	FlipHorizontal() error
	FlipVertical() error
	Interlace(mode InterlaceMode) error
	Sharpen() error
	UnsharpMask(sigma, amount, threshold float64) error
	Strip() error

	Save(path string, opts SaveOptions) error
	Release()
}

// ScaleAlgorithm names the resampling filter used when resizing. The
// zero value leaves the choice to the engine.
type ScaleAlgorithm string

const (
	ScaleUndefined       ScaleAlgorithm = ""
	ScaleNearestNeighbor ScaleAlgorithm = "nearest"
	ScaleBox             ScaleAlgorithm = "box"
	ScaleLinear          ScaleAlgorithm = "linear"
	ScaleCatmullRom      ScaleAlgorithm = "catmullrom"
	ScaleMitchell        ScaleAlgorithm = "mitchell"
	ScaleLanczos         ScaleAlgorithm = "lanczos"
)

// ParseScaleAlgorithm validates a configured algorithm name.
func ParseScaleAlgorithm(s string) (ScaleAlgorithm, error) {
	switch a := ScaleAlgorithm(s); a {
	case ScaleUndefined, ScaleNearestNeighbor, ScaleBox, ScaleLinear,
		ScaleCatmullRom, ScaleMitchell, ScaleLanczos:
		return a, nil
	}
	return ScaleUndefined, errors.Wrapf(ErrInvalidDefinition, "unknown scale algorithm %q", s)
}

type InterlaceMode string

const (
	InterlaceNone      InterlaceMode = "none"
	InterlaceLine      InterlaceMode = "line"
	InterlacePlane     InterlaceMode = "plane"
	InterlacePartition InterlaceMode = "partition"
)

// SaveOptions are the encode options handed to Image.Save.
type SaveOptions struct {
	Format               ImageType
	JPEGQuality          int
	PNGCompressionLevel  int
	PNGCompressionFilter int
	Progressive          bool
}
