package adaptimg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ZeroBox   = Box{}
	ZeroPoint = Point{}
)

// Box is a concrete image size in pixels.
type Box struct {
	Width, Height int
}

func NewBox(w, h int) Box {
	return Box{Width: w, Height: h}
}

func (b Box) AspectRatio() float64 {
	return float64(b.Width) / float64(b.Height)
}

func (b Box) IsZero() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Contains reports whether other fits into b on both axes.
func (b Box) Contains(other Box) bool {
	return other.Width <= b.Width && other.Height <= b.Height
}

// Scale multiplies both sides by ratio, rounding to the nearest pixel.
// Sides never shrink below one pixel.
func (b Box) Scale(ratio float64) Box {
	return Box{
		Width:  max(1, round(ratio*float64(b.Width))),
		Height: max(1, round(ratio*float64(b.Height))),
	}
}

// Widen returns b scaled proportionally to the given width.
func (b Box) Widen(width int) Box {
	return b.Scale(float64(width) / float64(b.Width))
}

// Heighten returns b scaled proportionally to the given height.
func (b Box) Heighten(height int) Box {
	return b.Scale(float64(height) / float64(b.Height))
}

// Swap returns b with width and height exchanged.
func (b Box) Swap() Box {
	return Box{Width: b.Height, Height: b.Width}
}

func (b Box) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

type Point struct {
	X, Y int
}

func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Height is the height of a target box, which is either a fixed number of
// pixels or unrestricted.
type Height struct {
	n            int
	unrestricted bool
}

// Unrestricted is the height of a box that only limits the width.
var Unrestricted = Height{unrestricted: true}

func Fixed(n int) Height {
	return Height{n: n}
}

func (h Height) IsUnrestricted() bool {
	return h.unrestricted
}

// Value returns the fixed height. It is 0 for an unrestricted height.
func (h Height) Value() int {
	if h.unrestricted {
		return 0
	}
	return h.n
}

func (h Height) String() string {
	if h.unrestricted {
		return "inf"
	}
	return strconv.Itoa(h.n)
}

// ParseSize parses a "WxH" size where an empty or "inf" height means
// unrestricted, ie. "800x", "800xinf" or "300x200".
func ParseSize(q string) (int, Height, error) {
	wh := strings.Split(q, "x")
	if len(wh) != 2 {
		return 0, Height{}, errors.Errorf("invalid size: %s", q)
	}

	fw, err := strconv.ParseFloat(wh[0], 64)
	if err != nil {
		return 0, Height{}, errors.Wrapf(err, "invalid size: %s", q)
	}
	if wh[1] == "" || wh[1] == "inf" {
		return int(fw), Unrestricted, nil
	}
	fh, err := strconv.ParseFloat(wh[1], 64)
	if err != nil {
		return 0, Height{}, errors.Wrapf(err, "invalid size: %s", q)
	}
	return int(fw), Fixed(int(fh)), nil
}

// Rounding function for float64 numbers
func round(in float64) int {
	if in < 0 {
		return int(math.Ceil(in - 0.5))
	}
	return int(math.Floor(in + 0.5))
}
