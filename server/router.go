package server

import (
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var ErrInvalidURL = errors.New("invalid image url")

// FSRouter maps site relative image urls to files below SourceDir and
// derivatives to the urls served under Prefix.
type FSRouter struct {
	SourceDir string
	Prefix    string
}

func NewFSRouter(sourceDir, prefix string) *FSRouter {
	return &FSRouter{SourceDir: sourceDir, Prefix: strings.Trim(prefix, "/")}
}

func (rt *FSRouter) OriginalImageFileInfo(u string) (*adaptimg.ImageFileInfo, error) {
	p, err := rt.SourcePath(u)
	if err != nil {
		return nil, err
	}
	return adaptimg.InspectFile(p)
}

// GenerateURL returns /{prefix}/{class}/{width}/{url}.
func (rt *FSRouter) GenerateURL(u, class string, width int) string {
	rel, err := cleanURL(u)
	if err != nil {
		rel = strings.TrimLeft(u, "/")
	}
	return "/" + path.Join(rt.Prefix, class, strconv.Itoa(width)) + "/" + rel
}

// SourcePath resolves u below SourceDir. Query strings and fragments are
// ignored; urls leaving the directory are rejected.
func (rt *FSRouter) SourcePath(u string) (string, error) {
	rel, err := cleanURL(u)
	if err != nil {
		return "", err
	}
	return filepath.Join(rt.SourceDir, filepath.FromSlash(rel)), nil
}

// URLFor is the inverse of SourcePath.
func (rt *FSRouter) URLFor(p string) (string, error) {
	rel, err := filepath.Rel(rt.SourceDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrInvalidURL, "%s is outside of %s", p, rt.SourceDir)
	}
	return "/" + filepath.ToSlash(rel), nil
}

func cleanURL(u string) (string, error) {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if uu, err := url.PathUnescape(u); err == nil {
		u = uu
	}
	if strings.ContainsRune(u, 0) || strings.Contains(u, "\\") {
		return "", errors.Wrapf(ErrInvalidURL, "%q", u)
	}
	for _, seg := range strings.Split(u, "/") {
		if seg == ".." {
			return "", errors.Wrapf(ErrInvalidURL, "%q", u)
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+u), "/")
	if rel == "" {
		return "", errors.Wrap(ErrInvalidURL, "empty url")
	}
	return rel, nil
}

func RequestLogger(next http.Handler) http.Handler {
	reqCounter := metrics.GetOrRegisterCounter("route.TotalNumRequests", nil)

	h := func(w http.ResponseWriter, r *http.Request) {
		reqCounter.Inc(1)

		u, err := url.QueryUnescape(r.URL.RequestURI())
		if err != nil {
			u = r.URL.RequestURI()
		}
		log := logrus.WithFields(logrus.Fields{
			"req_id": middleware.GetReqID(r.Context()),
			"method": r.Method,
			"uri":    u,
		})

		start := time.Now()
		log.Debug("Started")

		lw := &wrappedResponseWriter{w, 0}
		next.ServeHTTP(lw, r)

		log.WithFields(logrus.Fields{
			"status":   lw.Status(),
			"duration": time.Since(start),
		}).Infof("Completed %d %s", lw.Status(), http.StatusText(lw.Status()))
	}
	return http.HandlerFunc(h)
}
