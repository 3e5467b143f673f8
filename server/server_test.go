package server

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pressly/adaptimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	srcDir := t.TempDir()
	writePNG(t, filepath.Join(srcDir, "a.png"), 400, 300)
	writePNG(t, filepath.Join(srcDir, "sub", "b.png"), 80, 60)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "notes.txt"), []byte("hello"), 0644))

	cf := NewConfig()
	cf.CacheDir = t.TempDir()
	cf.LockDir = t.TempDir()
	cf.SourceDir = srcDir
	cf.CacheMaxAge = 60
	cf.Resizer.RetryDelayStr = "10ms"
	cf.Classes = []ClassConfig{
		{Name: "content", Widths: []int{100, 200}, Sizes: "100vw"},
		{Name: "teaser", Widths: []int{120}, Height: "square", Mode: "crop", Strip: true},
	}
	cf.Thumbnails = []ThumbnailConfig{{Name: "small", Width: 50, Height: 50, Mode: "crop"}}

	srv := New(cf)
	require.NoError(t, srv.Configure())
	return srv, srv.NewRouter()
}

func get(h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodePNG(t *testing.T, rec *httptest.ResponseRecorder) image.Image {
	t.Helper()
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	return img
}

func TestGetDerivative(t *testing.T) {
	srv, h := newTestServer(t)

	rec := get(h, "/img/content/100/a.png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Header().Get("X-Err"))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "100", rec.Header().Get("X-Meta-Width"))
	assert.Equal(t, "75", rec.Header().Get("X-Meta-Height"))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, image.Rect(0, 0, 100, 75), decodePNG(t, rec).Bounds())

	lastModified := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastModified)
	rec = get(h, "/img/content/100/a.png", "If-Modified-Since", lastModified)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	files, err := filepath.Glob(filepath.Join(srv.Config.CacheDir, "*", "*.png"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	rec = get(h, "/img/teaser/120/sub/b.png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Header().Get("X-Err"))
	assert.Equal(t, image.Rect(0, 0, 80, 60), decodePNG(t, rec).Bounds())
}

func TestGetDerivativeErrors(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		target string
		status int
		cached bool
	}{
		{"/img/content/150/a.png", 422, true},
		{"/img/content/abc/a.png", 422, true},
		{"/img/nope/100/a.png", 422, true},
		{"/img/content/100/notes.txt", 422, true},
		{"/img/content/100/..%2F..%2Fetc%2Fpasswd", 422, true},
		{"/img/content/100/missing.png", 404, false},
	}
	for _, tt := range tests {
		rec := get(h, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
		assert.NotEmpty(t, rec.Header().Get("X-Err"), tt.target)
		if tt.cached {
			assert.Equal(t, "s-maxage=300", rec.Header().Get("Cache-Control"), tt.target)
		}
	}
}

func TestGetThumbnail(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/thumb/small/a.png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Header().Get("X-Err"))
	assert.Equal(t, image.Rect(0, 0, 50, 50), decodePNG(t, rec).Bounds())

	rec = get(h, "/thumb/huge/a.png")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetSrcset(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/srcset?url=/a.png&class=content")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp srcsetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/img/content/100/a.png", resp.Src)
	assert.Equal(t, 100, resp.Width)
	assert.Equal(t, 75, resp.Height)
	assert.Equal(t, "/img/content/100/a.png 100w, /img/content/200/a.png 200w", resp.Srcset)
	assert.Equal(t, "100vw", resp.Sizes)
	require.Len(t, resp.Versions, 2)
	assert.Equal(t, "image/png", resp.Versions[1].MimeType)

	rec = get(h, "/srcset?class=content")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = get(h, "/srcset?url=/a.png&class=nope")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not registered")
}

func TestGetImgTag(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/tag?url=/sub/b.png&class=content&alt=B")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `<img src="/img/content/100/sub/b.png" width="80" height="60" srcset="/img/content/100/sub/b.png 80w" sizes="100vw" alt="B"/>`, rec.Body.String())

	rec = get(h, "/tag?url=/sub/b.png&class=content&src=/evil.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), " src="))
	assert.NotContains(t, rec.Body.String(), "evil")

	rec = get(h, "/tag?url=/sub/b.png&class=content&x%22%3E%3Cscript%3E=1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestRewriteHTML(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest("POST", "/rewrite", strings.NewReader(`<p><img src="/a.png" data-image-class="content" alt="a"></p>`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `srcset="/img/content/100/a.png 100w, /img/content/200/a.png 200w"`)
	assert.NotContains(t, rec.Body.String(), "data-image-class")
}

func TestGetImageInfo(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/info?url=/a.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "400", rec.Header().Get("X-Meta-Width"))

	var info imageInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, imageInfo{URL: "/a.png", Width: 400, Height: 300, Type: "png", MimeType: "image/png"}, info)

	rec = get(h, "/info?url=/missing.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPingAndIndex(t *testing.T) {
	_, h := newTestServer(t)
	assert.Equal(t, http.StatusOK, get(h, "/ping").Code)
	rec := get(h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ".", rec.Body.String())
}

func TestServerWarmer(t *testing.T) {
	srv, _ := newTestServer(t)

	n, err := srv.Warmer.WarmDir(t.Context(), srv.Config.SourceDir, srv.Router.URLFor)
	require.NoError(t, err)
	// two sources, three widths and one thumbnail each
	assert.Equal(t, 8, n)

	def, err := srv.Helper.Class("content")
	require.NoError(t, err)
	d, err := def.Definition(200)
	require.NoError(t, err)
	src, err := srv.Router.OriginalImageFileInfo("/a.png")
	require.NoError(t, err)
	info, err := srv.Resizer.Resize(t.Context(), d, src, false, nil)
	require.NoError(t, err)
	assert.False(t, info.ModTime().IsZero())
	assert.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
	assert.Equal(t, adaptimg.NewBox(200, 150), info.Size())
}
