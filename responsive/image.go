package responsive

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"golang.org/x/sync/errgroup"
)

// ResponsiveImage is an original image bound to an image class. It knows
// the distinct versions the class yields for the original's size.
type ResponsiveImage struct {
	url      string
	original *adaptimg.ImageFileInfo
	class    *ImageClass

	versions []WebImageInfo
	// index into versions for every width of the class
	byWidth map[int]int
}

// NewResponsiveImage inspects the original behind url. Widths whose
// version would be as wide as the one of the next smaller width are
// dropped, eg. all widths above the original's width without upscaling.
func NewResponsiveImage(router Router, url string, class *ImageClass) (*ResponsiveImage, error) {
	original, err := router.OriginalImageFileInfo(url)
	if err != nil {
		return nil, err
	}
	if !original.Type().Supported() {
		return nil, errors.Wrapf(adaptimg.ErrTypeNotSupported, "%s", url)
	}
	if original.Size().IsZero() {
		return nil, errors.Wrapf(adaptimg.ErrImageUnreadable, "%s has no size", url)
	}

	ri := &ResponsiveImage{
		url:      url,
		original: original,
		class:    class,
		byWidth:  make(map[int]int, len(class.widths)),
	}
	// versions are described upright, as the resizer fixes the orientation
	upright := original.Size()
	if original.NeedsOrientationFix() {
		upright = adaptimg.NewFixOrientation(original.Orientation()).CalculateSize(upright)
	}

	prev := 0
	for _, w := range class.widths {
		def := class.defs[w]
		size := def.CalculateSize(upright)
		if size.Width != prev {
			ri.versions = append(ri.versions, WebImageInfo{
				URL:      router.GenerateURL(url, class.name, w),
				Width:    size.Width,
				Height:   size.Height,
				MimeType: def.OutputTypeMap().Get(original.Type()).Type.MimeType(),
			})
		}
		ri.byWidth[w] = len(ri.versions) - 1
		prev = size.Width
	}
	return ri, nil
}

func (ri *ResponsiveImage) URL() string {
	return ri.url
}

func (ri *ResponsiveImage) Original() *adaptimg.ImageFileInfo {
	return ri.original
}

func (ri *ResponsiveImage) Class() *ImageClass {
	return ri.class
}

// Versions returns the distinct versions by ascending width.
func (ri *ResponsiveImage) Versions() []WebImageInfo {
	return append([]WebImageInfo(nil), ri.versions...)
}

// DefaultImageInfo returns the version for the class's default width. If
// that width was dropped as a duplicate, the version it duplicates is
// returned.
func (ri *ResponsiveImage) DefaultImageInfo() WebImageInfo {
	return ri.versions[ri.byWidth[ri.class.defaultWidth]]
}

func (ri *ResponsiveImage) SrcsetAttributeValue() string {
	srcset := make([]string, len(ri.versions))
	for i, v := range ri.versions {
		srcset[i] = fmt.Sprintf("%s %dw", v.URL, v.Width)
	}
	return strings.Join(srcset, ", ")
}

func (ri *ResponsiveImage) SizesAttributeValue() string {
	return ri.class.sizes
}

// CreateResizedVersions generates the versions of all widths of the class.
func (ri *ResponsiveImage) CreateResizedVersions(ctx context.Context, r Resizer) ([]*adaptimg.ImageFileInfo, error) {
	infos := make([]*adaptimg.ImageFileInfo, len(ri.class.widths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, w := range ri.class.widths {
		def := ri.class.defs[w]
		g.Go(func() error {
			info, err := r.Resize(ctx, def, ri.original, true, nil)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// ResizedVersion generates the version for width, which must be one of
// the class's widths.
func (ri *ResponsiveImage) ResizedVersion(ctx context.Context, r Resizer, width int) (*adaptimg.ImageFileInfo, error) {
	def, err := ri.class.Definition(width)
	if err != nil {
		return nil, err
	}
	return r.Resize(ctx, def, ri.original, true, nil)
}
