package responsive

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
)

// HeightConstraint limits the height of the version of a given width.
type HeightConstraint func(width int) adaptimg.Height

// Unbounded leaves the height unrestricted.
func Unbounded(int) adaptimg.Height {
	return adaptimg.Unrestricted
}

// Square limits the height to the width.
func Square(width int) adaptimg.Height {
	return adaptimg.Fixed(width)
}

// Ratio limits the height to width*h/w, e.g. Ratio(16, 9).
func Ratio(w, h int) HeightConstraint {
	return func(width int) adaptimg.Height {
		return adaptimg.Fixed(max(1, int(math.Round(float64(width)*float64(h)/float64(w)))))
	}
}

type ClassOptions struct {
	Name   string
	Widths []int
	Sizes  string

	// Height defaults to Unbounded.
	Height HeightConstraint

	// DefaultWidth must be one of Widths. Zero selects the smallest.
	DefaultWidth int

	Upscale        bool
	Mode           adaptimg.Mode
	ScaleAlgorithm adaptimg.ScaleAlgorithm

	// Filters run when a version really gets resized, PostFilters always.
	Filters     []adaptimg.Filter
	PostFilters []adaptimg.Filter

	OutputTypes *adaptimg.OutputTypeMap
}

// ImageClass is a class of responsive images sharing the available widths
// and the sizes attribute. It holds one resize definition per width.
type ImageClass struct {
	name         string
	widths       []int
	sizes        string
	defaultWidth int
	defs         map[int]*adaptimg.ImageResizeDefinition
}

func NewImageClass(opts ClassOptions) (*ImageClass, error) {
	if opts.Name == "" {
		return nil, errors.Wrap(ErrInvalidClass, "name is empty")
	}
	if len(opts.Widths) == 0 {
		return nil, errors.Wrapf(ErrInvalidClass, "%s: no widths", opts.Name)
	}

	widths := append([]int(nil), opts.Widths...)
	sort.Ints(widths)
	for i, w := range widths {
		if w < 1 {
			return nil, errors.Wrapf(ErrInvalidClass, "%s: width %d", opts.Name, w)
		}
		if i > 0 && widths[i-1] == w {
			return nil, errors.Wrapf(ErrInvalidClass, "%s: duplicate width %d", opts.Name, w)
		}
	}

	c := &ImageClass{
		name:         opts.Name,
		widths:       widths,
		sizes:        opts.Sizes,
		defaultWidth: opts.DefaultWidth,
		defs:         make(map[int]*adaptimg.ImageResizeDefinition, len(widths)),
	}
	if c.defaultWidth == 0 {
		c.defaultWidth = widths[0]
	}
	if !c.HasWidth(c.defaultWidth) {
		return nil, errors.Wrapf(ErrInvalidClass, "%s: default width %d is not available", opts.Name, c.defaultWidth)
	}

	height := opts.Height
	if height == nil {
		height = Unbounded
	}
	for _, w := range widths {
		d, err := adaptimg.NewImageResizeDefinition(w, height(w), opts.Mode, opts.Upscale)
		if err != nil {
			return nil, errors.Wrapf(err, "class %s", opts.Name)
		}
		if opts.ScaleAlgorithm != adaptimg.ScaleUndefined {
			d.SetScaleAlgorithm(opts.ScaleAlgorithm)
		}
		for _, f := range opts.Filters {
			d.AddFilter(f, 0)
		}
		for _, f := range opts.PostFilters {
			d.AddPostFilter(f, 0)
		}
		if opts.OutputTypes != nil {
			d.SetOutputTypeMap(opts.OutputTypes)
		}
		c.defs[w] = d
	}
	return c, nil
}

func (c *ImageClass) Name() string {
	return c.name
}

// Widths returns the available widths in ascending order.
func (c *ImageClass) Widths() []int {
	return append([]int(nil), c.widths...)
}

func (c *ImageClass) DefaultWidth() int {
	return c.defaultWidth
}

// Sizes is the value of the sizes attribute of images of this class.
func (c *ImageClass) Sizes() string {
	return c.sizes
}

func (c *ImageClass) HasWidth(width int) bool {
	i := sort.SearchInts(c.widths, width)
	return i < len(c.widths) && c.widths[i] == width
}

func (c *ImageClass) Definition(width int) (*adaptimg.ImageResizeDefinition, error) {
	d, ok := c.defs[width]
	if !ok {
		return nil, errors.Wrapf(ErrWidthNotAllowed, "%s: %d", c.name, width)
	}
	return d, nil
}

func (c *ImageClass) DefaultDefinition() *adaptimg.ImageResizeDefinition {
	return c.defs[c.defaultWidth]
}

// AddFilter adds f to the resize transformation of every width.
func (c *ImageClass) AddFilter(f adaptimg.Filter, priority int) *ImageClass {
	for _, w := range c.widths {
		c.defs[w].AddFilter(f, priority)
	}
	return c
}

// AddPostFilter adds f to the post transformation of every width.
func (c *ImageClass) AddPostFilter(f adaptimg.Filter, priority int) *ImageClass {
	for _, w := range c.widths {
		c.defs[w].AddPostFilter(f, priority)
	}
	return c
}

func (c *ImageClass) SetScaleAlgorithm(a adaptimg.ScaleAlgorithm) *ImageClass {
	for _, w := range c.widths {
		c.defs[w].SetScaleAlgorithm(a)
	}
	return c
}

func (c *ImageClass) SetOutputTypeMap(m *adaptimg.OutputTypeMap) *ImageClass {
	for _, w := range c.widths {
		c.defs[w].SetOutputTypeMap(m)
	}
	return c
}
