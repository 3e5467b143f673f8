package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/responsive"
	"github.com/sirupsen/logrus"
)

var ErrThumbnailNotFound = errors.New("thumbnail not configured")

func Index(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(200)
	w.Write([]byte(`.`))
}

// GetDerivative serves /{prefix}/{class}/{width}/*, generating the version
// on a cache miss.
func GetDerivative(w http.ResponseWriter, r *http.Request) {
	widthParam := chi.URLParam(r, "width")
	width, err := strconv.Atoi(widthParam)
	if err != nil {
		imageError(w, r, errors.Wrapf(responsive.ErrWidthNotAllowed, "invalid width %q", widthParam))
		return
	}

	class, err := app.Helper.Class(chi.URLParam(r, "class"))
	if err != nil {
		imageError(w, r, err)
		return
	}
	def, err := class.Definition(width)
	if err != nil {
		imageError(w, r, err)
		return
	}
	src, err := app.Router.OriginalImageFileInfo(chi.URLParam(r, "*"))
	if err != nil {
		imageError(w, r, err)
		return
	}

	im, err := app.generate(r.Context(), func(ctx context.Context, reallyDoIt bool) (*adaptimg.ImageFileInfo, error) {
		return app.Resizer.Resize(ctx, def, src, reallyDoIt, nil)
	})
	if err != nil {
		imageError(w, r, err)
		return
	}
	respond.Image(w, r, im)
}

// GetThumbnail serves /thumb/{name}/*.
func GetThumbnail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	g, ok := app.Thumbnails[name]
	if !ok {
		imageError(w, r, errors.Wrapf(ErrThumbnailNotFound, "%q", name))
		return
	}
	src, err := app.Router.OriginalImageFileInfo(chi.URLParam(r, "*"))
	if err != nil {
		imageError(w, r, err)
		return
	}

	im, err := app.generate(r.Context(), func(ctx context.Context, reallyDoIt bool) (*adaptimg.ImageFileInfo, error) {
		return g.Thumbnail(ctx, reallyDoIt, src)
	})
	if err != nil {
		imageError(w, r, err)
		return
	}
	respond.Image(w, r, im)
}

type srcsetResponse struct {
	Src      string                    `json:"src"`
	Width    int                       `json:"width"`
	Height   int                       `json:"height"`
	Srcset   string                    `json:"srcset"`
	Sizes    string                    `json:"sizes"`
	Versions []responsive.WebImageInfo `json:"versions"`
}

// GetSrcset returns the attributes of a responsive img element for
// ?url=&class= without generating any version.
func GetSrcset(w http.ResponseWriter, r *http.Request) {
	ri, err := responsiveImage(r)
	if err != nil {
		apiError(w, r, err)
		return
	}

	def := ri.DefaultImageInfo()
	respond.JSON(w, http.StatusOK, &srcsetResponse{
		Src:      def.URL,
		Width:    def.Width,
		Height:   def.Height,
		Srcset:   ri.SrcsetAttributeValue(),
		Sizes:    ri.SizesAttributeValue(),
		Versions: ri.Versions(),
	})
}

// GetImgTag renders the img element for ?url=&class=. Any other query
// parameter becomes an attribute.
func GetImgTag(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attrs := map[string]string{}
	for k := range q {
		if k != "url" && k != "class" {
			attrs[k] = q.Get(k)
		}
	}

	tag, err := app.Helper.ImgTag(q.Get("url"), q.Get("class"), attrs)
	if err != nil {
		apiError(w, r, err)
		return
	}
	respond.Text(w, http.StatusOK, tag)
}

// RewriteHTML makes every img element of the posted document carrying a
// data-image-class attribute responsive.
func RewriteHTML(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, 10<<20)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	n, err := app.Helper.RewriteHTML(body, w)
	if err != nil {
		logrus.WithError(err).Warn("rewriting html")
		return
	}
	logrus.WithField("images", n).Debug("rewrote html")
}

type imageInfo struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Type        string `json:"type"`
	MimeType    string `json:"mime_type"`
	Orientation int    `json:"orientation"`
}

// GetImageInfo returns the metadata of the original image at ?url=.
func GetImageInfo(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	im, err := app.Router.OriginalImageFileInfo(u)
	if err != nil {
		apiError(w, r, err)
		return
	}

	respond.ImageInfo(w, http.StatusOK, im, &imageInfo{
		URL:         u,
		Width:       im.Width(),
		Height:      im.Height(),
		Type:        im.Type().String(),
		MimeType:    im.MimeType(),
		Orientation: im.Orientation(),
	})
}

func responsiveImage(r *http.Request) (*responsive.ResponsiveImage, error) {
	q := r.URL.Query()
	if q.Get("url") == "" {
		return nil, errors.Wrap(ErrInvalidURL, "missing url")
	}
	return app.Helper.ResponsiveImage(q.Get("url"), q.Get("class"))
}

func imageError(w http.ResponseWriter, r *http.Request, err error) {
	status := logFailure(r, err)
	respond.ImageError(w, status, err)
}

func apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := logFailure(r, err)
	respond.ApiError(w, status, err)
}

func logFailure(r *http.Request, err error) int {
	status := errorStatus(err)
	log := logrus.WithError(err).WithField("url", r.URL.String())
	if status >= 500 {
		log.Error("Failed to serve image")
	} else {
		log.Debug("Rejected image request")
	}
	return status
}
