package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/responsive"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Thumbnailer is usually an *adaptimg.ThumbnailGenerator.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, reallyDoIt bool, src *adaptimg.ImageFileInfo) (*adaptimg.ImageFileInfo, error)
}

// Warmer generates every version of a source image ahead of the first
// request: all widths of all registered classes and all thumbnails.
type Warmer struct {
	helper     *responsive.Helper
	resizer    responsive.Resizer
	thumbnails []Thumbnailer

	// Concurrency bounds WarmDir. Defaults to the number of CPUs.
	Concurrency int
	Logger      logrus.FieldLogger
}

func NewWarmer(helper *responsive.Helper, resizer responsive.Resizer, thumbnails ...Thumbnailer) *Warmer {
	return &Warmer{
		helper:     helper,
		resizer:    resizer,
		thumbnails: thumbnails,
		Logger:     logrus.StandardLogger(),
	}
}

// Warm generates the versions of the image at url and returns how many
// files were checked or written. Sources that are no bitmaps are skipped.
func (w *Warmer) Warm(ctx context.Context, url string) (int, error) {
	src, err := w.helper.Router().OriginalImageFileInfo(url)
	if err != nil {
		return 0, err
	}
	if !src.Type().Supported() {
		return 0, nil
	}

	n := 0
	for _, c := range w.helper.Classes() {
		ri, err := w.helper.ResponsiveImage(url, c.Name())
		if err != nil {
			return n, err
		}
		infos, err := ri.CreateResizedVersions(ctx, w.resizer)
		if err != nil {
			return n, errors.Wrapf(err, "class %s", c.Name())
		}
		n += len(infos)
	}
	for _, t := range w.thumbnails {
		if _, err := t.Thumbnail(ctx, true, src); err != nil {
			return n, errors.Wrap(err, "thumbnail")
		}
		n++
	}

	w.Logger.WithFields(logrus.Fields{"url": url, "versions": n}).Debug("warmed image")
	return n, nil
}

// WarmDir warms every file below dir. urlFor maps a file path to the url
// known to the helper's router. The first error cancels the walk.
func (w *Warmer) WarmDir(ctx context.Context, dir string, urlFor func(path string) (string, error)) (int, error) {
	limit := w.Concurrency
	if limit < 1 {
		limit = runtime.NumCPU()
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		url, err := urlFor(path)
		if err != nil {
			return err
		}
		g.Go(func() error {
			n, err := w.Warm(ctx, url)
			if err != nil {
				return errors.Wrap(err, url)
			}
			total.Add(int64(n))
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return int(total.Load()), werr
	}
	return int(total.Load()), err
}
