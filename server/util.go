package server

import (
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/responsive"
	"github.com/unrolled/render"
)

type Responder struct {
	*render.Render
}

func NewResponder() *Responder {
	return &Responder{render.New(render.Options{})}
}

// Image streams a cached derivative or original. Conditional and range
// requests are answered from the file's modification time.
func (r *Responder) Image(w http.ResponseWriter, req *http.Request, im *adaptimg.ImageFileInfo) {
	f, err := os.Open(im.Pathname())
	if err != nil {
		r.ImageError(w, http.StatusNotFound, errors.Wrap(adaptimg.ErrImageNotFound, err.Error()))
		return
	}
	defer f.Close()

	r.imageHeaders(w, im)
	http.ServeContent(w, req, im.Filename(), im.ModTime(), f)
}

func (r *Responder) ImageInfo(w http.ResponseWriter, status int, im *adaptimg.ImageFileInfo, v interface{}) {
	r.imageHeaders(w, im)
	r.JSON(w, status, v)
}

func (r *Responder) imageHeaders(w http.ResponseWriter, im *adaptimg.ImageFileInfo) {
	w.Header().Set("Content-Type", im.MimeType())
	w.Header().Set("X-Meta-Width", fmt.Sprintf("%d", im.Width()))
	w.Header().Set("X-Meta-Height", fmt.Sprintf("%d", im.Height()))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", app.Config.CacheMaxAge))
}

func (r *Responder) ImageError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		r.Data(w, status, []byte{})
		return
	}

	r.cacheErrors(w, err)
	w.Header().Set("X-Err", err.Error())
	r.Data(w, status, []byte{})
}

func (r *Responder) ApiError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		r.JSON(w, status, []byte{})
		return
	}

	r.cacheErrors(w, err)
	r.JSON(w, status, map[string]interface{}{"error": err.Error()})
}

func (r *Responder) cacheErrors(w http.ResponseWriter, err error) {
	if invalidInput(err) {
		// For invalid inputs, we tell the surrogate to cache the
		// error for a small amount of time.
		w.Header().Set("Cache-Control", "s-maxage=300") // 5 minutes
	}
}

func invalidInput(err error) bool {
	for _, e := range []error{
		ErrInvalidURL,
		ErrThumbnailNotFound,
		adaptimg.ErrTypeNotSupported,
		adaptimg.ErrImageUnreadable,
		adaptimg.ErrInvalidDefinition,
		responsive.ErrWidthNotAllowed,
		responsive.ErrClassNotRegistered,
		responsive.ErrInvalidAttribute,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// errorStatus maps an error of the image layer to a response status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, adaptimg.ErrImageNotFound):
		return http.StatusNotFound
	case invalidInput(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, adaptimg.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
