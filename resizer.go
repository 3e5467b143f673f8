package adaptimg

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 2 * time.Second
)

// ImageResizer creates derivatives of source images and keeps them in the
// cache tree laid out by its path generator. A derivative is generated at
// most once per process at a time; across processes a file lock per cache
// path keeps generators apart.
type ImageResizer struct {
	engine Engine
	paths  OutputPathGenerator

	// LockDir holds the lock files. Defaults to the system temp dir.
	LockDir string

	// MaxAttempts is the number of times the lock is tried before giving up,
	// waiting RetryDelay in between.
	MaxAttempts int
	RetryDelay  time.Duration

	Logger logrus.FieldLogger

	inflight singleflight.Group
}

func NewImageResizer(engine Engine, paths OutputPathGenerator) *ImageResizer {
	return &ImageResizer{
		engine:      engine,
		paths:       paths,
		LockDir:     os.TempDir(),
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Logger:      logrus.StandardLogger(),
	}
}

func (r *ImageResizer) Engine() Engine {
	return r.engine
}

func (r *ImageResizer) PathGenerator() OutputPathGenerator {
	return r.paths
}

// Resize returns the derivative of src described by def. pre is an
// optional transformation run before the definition's resize chain.
//
// Fresh cache entries are returned as they are. With reallyDoIt unset
// nothing is generated: the returned info describes the derivative as it
// would be, with a zero ModTime when it does not exist yet.
func (r *ImageResizer) Resize(ctx context.Context, def *ImageResizeDefinition, src *ImageFileInfo, reallyDoIt bool, pre *FilterChain) (*ImageFileInfo, error) {
	m := metrics.GetOrRegisterTimer("fn.resizer.Resize", nil)
	defer m.UpdateSince(time.Now())

	if !src.Type().Supported() {
		return nil, errors.Wrapf(ErrTypeNotSupported, "%s", src.Pathname())
	}

	if src.NeedsOrientationFix() {
		pre = NewFilterChain(NewFixOrientation(src.Orientation())).Append(pre)
	}

	out := def.OutputTypeMap().Get(src.Type())
	if !out.Type.Encodable() {
		return nil, errors.Wrapf(ErrTypeNotSupported, "can not write %s derivatives", out.Type)
	}
	path := r.paths.OutputPath(src, def, out.Extension(), pre)

	if fresh(path, src) {
		metrics.GetOrRegisterCounter("fn.resizer.CacheHit", nil).Inc(1)
		return InspectFile(path)
	}

	if !reallyDoIt {
		size := Compose(pre, def.ResizeTransformation()).CalculateSize(src.Size())
		return NewImageFileInfo(path, size.Width, size.Height, out.Type, time.Time{}, 0), nil
	}

	if _, err := os.Stat(src.Pathname()); err != nil {
		return nil, errors.Wrapf(ErrImageNotFound, "%s", src.Pathname())
	}

	// The generation is shared by all callers of path, so it outlives the
	// caller that started it. It ends after MaxAttempts at the latest.
	shared := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(path, func() (interface{}, error) {
		return r.generate(shared, def, src, pre, out, path)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ErrGenerationFailed, "%s: %v", path, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ImageFileInfo), nil
	}
}

func (r *ImageResizer) generate(ctx context.Context, def *ImageResizeDefinition, src *ImageFileInfo, pre *FilterChain, out OutputTypeOptions, path string) (*ImageFileInfo, error) {
	m := metrics.GetOrRegisterTimer("fn.resizer.Generate", nil)
	defer m.UpdateSince(time.Now())

	lg := r.logger().WithFields(logrus.Fields{"path": path, "src": src.Pathname()})

	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := r.attempt(def, src, pre, out, path)
		if err != nil {
			lg.WithError(err).Error("generating derivative failed")
			return nil, err
		}
		if done {
			return InspectFile(path)
		}

		metrics.GetOrRegisterCounter("fn.resizer.LockContention", nil).Inc(1)
		lg.WithField("attempt", attempt).Debug("derivative is locked")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrGenerationFailed, "%s: %v", path, ctx.Err())
		case <-time.After(r.RetryDelay):
		}
	}
	return nil, errors.Wrapf(ErrLockTimeout, "%s after %d attempts", path, attempts)
}

// attempt generates path under its lock. It reports false when the lock is
// held by somebody else.
func (r *ImageResizer) attempt(def *ImageResizeDefinition, src *ImageFileInfo, pre *FilterChain, out OutputTypeOptions, path string) (bool, error) {
	lock, err := tryLock(r.lockDir(), path)
	if err != nil {
		return false, errors.Wrapf(ErrGenerationFailed, "lock %s: %v", path, err)
	}
	if lock == nil {
		return false, nil
	}
	defer lock.release()

	// Another generator may have finished while we waited.
	if fresh(path, src) {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, errors.Wrapf(ErrGenerationFailed, "%s: %v", path, err)
	}

	size := Compose(pre, def.ResizeTransformation()).CalculateSize(src.Size())
	resize := size != src.Size() || pre.Len() > 0
	convert := out.Type != src.Type()
	post := Compose(def.PostTransformation(), out.Filters())

	if !resize && !convert && post.Len() == 0 {
		err = writeAtomic(path, func(tmp string) error {
			return copyFile(src.Pathname(), tmp)
		})
	} else {
		err = writeAtomic(path, func(tmp string) error {
			img, err := r.engine.Open(src.Pathname())
			if err != nil {
				return err
			}
			defer img.Release()

			if resize || convert {
				if err := Compose(pre, def.ResizeTransformation()).Apply(img); err != nil {
					return err
				}
			}
			if err := post.Apply(img); err != nil {
				return err
			}
			return img.Save(tmp, out.SaveOptions())
		})
	}
	if err != nil {
		return false, errors.Wrapf(ErrGenerationFailed, "%s: %v", path, err)
	}
	return true, nil
}

func (r *ImageResizer) lockDir() string {
	if r.LockDir == "" {
		return os.TempDir()
	}
	return r.LockDir
}

func (r *ImageResizer) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// fresh reports whether path exists and is newer than src.
func fresh(path string, src *ImageFileInfo) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.ModTime().After(src.ModTime())
}

// writeAtomic lets write fill a temp file next to path and renames it into
// place, so readers never see a partial file.
func writeAtomic(path string, write func(tmp string) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	f.Close()

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
