package server

import (
	"context"
	"net/http"
	"os"

	raven "github.com/getsentry/raven-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/imagex"
	"github.com/pressly/adaptimg/responsive"
	"github.com/pressly/adaptimg/watcher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	app     *Server
	respond = NewResponder()
)

type Server struct {
	Config     *Config
	Engine     adaptimg.Engine
	Resizer    *adaptimg.ImageResizer
	Router     *FSRouter
	Helper     *responsive.Helper
	Thumbnails map[string]*adaptimg.ThumbnailGenerator
	Warmer     *watcher.Warmer
	Watcher    *watcher.Watcher

	generators *semaphore.Weighted
}

func New(conf *Config) *Server {
	app = &Server{Config: conf}
	return app
}

func (srv *Server) Configure() (err error) {
	cf := srv.Config
	if err := cf.Apply(); err != nil {
		return err
	}
	if err := cf.SetupStatsD(); err != nil {
		return err
	}
	if cf.Sentry.DSN != "" {
		if err := raven.SetDSN(cf.Sentry.DSN); err != nil {
			return err
		}
		logrus.AddHook(sentryHook{})
	}

	if err := os.MkdirAll(cf.CacheDir, 0755); err != nil {
		return errors.Wrap(err, "cache_dir")
	}

	srv.Engine = imagex.Engine{}
	srv.Resizer = adaptimg.NewImageResizer(srv.Engine, adaptimg.NewBasedirPathGenerator(cf.CacheDir))
	srv.Resizer.LockDir = cf.LockDir
	srv.Resizer.MaxAttempts = cf.Resizer.MaxAttempts
	srv.Resizer.RetryDelay = cf.Resizer.RetryDelay
	srv.generators = semaphore.NewWeighted(int64(cf.Limits.MaxGenerators))

	srv.Router = NewFSRouter(cf.SourceDir, cf.URLPrefix)
	srv.Helper = responsive.NewHelper(srv.Router)

	classes, err := cf.ImageClasses()
	if err != nil {
		return err
	}
	for _, c := range classes {
		if err := srv.Helper.AddClass(c); err != nil {
			return err
		}
	}

	srv.Thumbnails, err = cf.ThumbnailGenerators(srv.Resizer)
	if err != nil {
		return err
	}

	thumbs := make([]watcher.Thumbnailer, 0, len(srv.Thumbnails))
	for _, g := range srv.Thumbnails {
		thumbs = append(thumbs, g)
	}
	srv.Warmer = watcher.NewWarmer(srv.Helper, srv.Resizer, thumbs...)

	if cf.Watch.Enabled {
		srv.Watcher, err = watcher.New(cf.SourceDir, srv.Warmer, srv.Router.URLFor)
		if err != nil {
			return err
		}
		srv.Watcher.Debounce = cf.Watch.Debounce
	}

	return nil
}

// Start runs the background work of the server until ctx is done.
func (srv *Server) Start(ctx context.Context) {
	if srv.Watcher != nil {
		go func() {
			if err := srv.Watcher.Run(ctx); err != nil {
				logrus.WithError(err).Error("source watcher stopped")
			}
		}()
	}
}

// Close signals to the server that should deny new requests
// and finish up requests in progress.
func (srv *Server) Close() {
	logrus.Info("closing server..")
}

// Shutdown will release other resources and halt the server.
func (srv *Server) Shutdown() {
	if srv.Watcher != nil {
		srv.Watcher.Close()
	}
	logrus.Info("server shutdown.")
}

// generate serves cache hits right away and bounds the number of
// concurrent generations by limits.max_generators.
func (srv *Server) generate(ctx context.Context, resize func(ctx context.Context, reallyDoIt bool) (*adaptimg.ImageFileInfo, error)) (*adaptimg.ImageFileInfo, error) {
	im, err := resize(ctx, false)
	if err != nil || !im.ModTime().IsZero() {
		return im, err
	}

	if err := srv.generators.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(adaptimg.ErrGenerationFailed, err.Error())
	}
	defer srv.generators.Release(1)

	return resize(ctx, true)
}

func (srv *Server) NewRouter() http.Handler {
	cf := srv.Config

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	if cf.Sentry.DSN != "" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		r.Use(RequestLogger)
		r.Use(CapturePanic())
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
		r.Use(RequestLogger)
		r.Use(middleware.Recoverer)
	}

	r.Use(middleware.ThrottleBacklog(cf.Limits.MaxRequests, cf.Limits.BacklogSize, cf.Limits.BacklogTimeout))
	r.Use(middleware.Timeout(cf.Limits.RequestTimeout))

	r.Use(middleware.Heartbeat("/ping"))
	r.Use(middleware.GetHead)

	if cf.Profiler {
		r.Mount("/debug", middleware.Profiler())
	}

	r.With(trackRoute("root")).Get("/", Index)
	r.With(trackRoute("imageInfo")).Get("/info", GetImageInfo)

	r.Group(func(r chi.Router) {
		cors := cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Meta-Width", "X-Meta-Height"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any of major browsers
		})
		r.Use(cors.Handler)

		r.With(trackRoute("srcset")).Get("/srcset", GetSrcset)
		r.With(trackRoute("imgTag")).Get("/tag", GetImgTag)
		r.With(trackRoute("thumbnail")).Get("/thumb/{name}/*", GetThumbnail)
		r.With(trackRoute("derivative")).Get("/"+cf.URLPrefix+"/{class}/{width}/*", GetDerivative)
	})

	r.With(trackRoute("rewrite")).Post("/rewrite", RewriteHTML)

	return r
}
