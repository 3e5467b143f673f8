package adaptimg

import (
	"context"

	"github.com/pkg/errors"
)

// ThumbnailGenerator creates stripped thumbnails of one fixed size.
type ThumbnailGenerator struct {
	resizer *ImageResizer
	def     *ImageResizeDefinition
}

// NewThumbnailGenerator accepts ModeMax (inset) or ModeCrop (outbound).
// Filters are added to the resize transformation.
func NewThumbnailGenerator(resizer *ImageResizer, width, height int, mode Mode, filters ...Filter) (*ThumbnailGenerator, error) {
	if mode != ModeMax && mode != ModeCrop {
		return nil, errors.Wrapf(ErrInvalidDefinition, "thumbnail mode must be %q or %q", ModeMax, ModeCrop)
	}
	def, err := NewImageResizeDefinition(width, Fixed(height), mode, false)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		def.AddFilter(f, 0)
	}
	def.AddPostFilter(NewStrip(), 0)
	return &ThumbnailGenerator{resizer: resizer, def: def}, nil
}

func (g *ThumbnailGenerator) Definition() *ImageResizeDefinition {
	return g.def
}

func (g *ThumbnailGenerator) Thumbnail(ctx context.Context, reallyDoIt bool, src *ImageFileInfo) (*ImageFileInfo, error) {
	return g.resizer.Resize(ctx, g.def, src, reallyDoIt, nil)
}
