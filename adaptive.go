package adaptimg

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrNoDefinitions = errors.New("no image resize definitions available")

// AdaptiveImageResizer scales images to the predefined width nearest to a
// requested one.
type AdaptiveImageResizer struct {
	resizer *ImageResizer

	mu     sync.RWMutex
	defs   map[int]*ImageResizeDefinition
	widths []int
}

func NewAdaptiveImageResizer(resizer *ImageResizer, defs ...*ImageResizeDefinition) *AdaptiveImageResizer {
	a := &AdaptiveImageResizer{resizer: resizer, defs: map[int]*ImageResizeDefinition{}}
	for _, d := range defs {
		a.AddDefinition(d)
	}
	return a
}

// NewAdaptiveImageResizerForWidths creates one max mode definition of
// unrestricted height for each width.
func NewAdaptiveImageResizerForWidths(resizer *ImageResizer, widths ...int) (*AdaptiveImageResizer, error) {
	a := NewAdaptiveImageResizer(resizer)
	for _, w := range widths {
		d, err := NewImageResizeDefinition(w, Unrestricted, ModeMax, false)
		if err != nil {
			return nil, err
		}
		a.AddDefinition(d)
	}
	return a, nil
}

// AddDefinition adds an allowed size. A definition of the same width is
// replaced.
func (a *AdaptiveImageResizer) AddDefinition(d *ImageResizeDefinition) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.defs[d.Width()]; !ok {
		a.widths = append(a.widths, d.Width())
		sort.Ints(a.widths)
	}
	a.defs[d.Width()] = d
}

// DefinitionForWidth returns the definition nearest to width. Unless
// fitInWidth is set it is the narrowest one at least as wide as width,
// otherwise the widest one not wider than width. When there is none the
// widest or narrowest definition is used.
func (a *AdaptiveImageResizer) DefinitionForWidth(width int, fitInWidth bool) (*ImageResizeDefinition, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.widths) == 0 {
		return nil, ErrNoDefinitions
	}

	i := sort.SearchInts(a.widths, width)
	switch {
	case i < len(a.widths) && a.widths[i] == width:
	case fitInWidth && i > 0:
		i--
	case i == len(a.widths):
		i--
	}
	return a.defs[a.widths[i]], nil
}

func (a *AdaptiveImageResizer) Resize(ctx context.Context, reallyDoIt bool, src *ImageFileInfo, width int, fitInWidth bool) (*ImageFileInfo, error) {
	d, err := a.DefinitionForWidth(width, fitInWidth)
	if err != nil {
		return nil, err
	}
	return a.resizer.Resize(ctx, d, src, reallyDoIt, nil)
}
