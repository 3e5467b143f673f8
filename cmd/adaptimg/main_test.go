package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResizeCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 400, 300)
	out := filepath.Join(dir, "out")

	stdout, err := run(t, "resize", "--size", "100x", "--out", out, src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "400x300 -> "+out)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "100x75"), stdout)

	stdout, err = run(t, "resize", "--widths", "120,240,480", "--width", "300", "--fit", "--dry-run", "--out", out, src)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "240x180"), stdout)

	_, err = run(t, "resize", src)
	assert.Error(t, err)
	_, err = run(t, "resize", "--size", "100x", "--mode", "crop", src)
	assert.Error(t, err)
}

func TestThumbAndInfoCommands(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 400, 300)

	stdout, err := run(t, "thumb", "--size", "64x64", "--out", filepath.Join(dir, "thumbs"), src)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "64x64"), stdout)

	stdout, err = run(t, "info", src)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"path":%q,"type":"png","mime_type":"image/png","width":400,"height":300}`, src), stdout)

	_, err = run(t, "thumb", "--size", "64x", src)
	assert.Error(t, err)
}

func writeSite(t *testing.T) (string, string) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writePNG(t, filepath.Join(src, "photos", "a.png"), 400, 300)
	writePNG(t, filepath.Join(src, "b.png"), 100, 100)

	conf := filepath.Join(dir, "adaptimg.toml")
	require.NoError(t, os.WriteFile(conf, []byte(fmt.Sprintf(`
cache_dir = %q
lock_dir = %q
source_dir = %q

[[classes]]
name = "content"
widths = [100, 200]
sizes = "50vw"

[[thumbnails]]
name = "small"
width = 32
height = 32
mode = "crop"
`, filepath.Join(dir, "cache"), filepath.Join(dir, "locks"), src)), 0644))
	return conf, dir
}

func TestTagCommand(t *testing.T) {
	conf, _ := writeSite(t)

	stdout, err := run(t, "tag", "--config", conf, "--class", "content", "-a", "alt=A photo", "/photos/a.png")
	require.NoError(t, err)
	assert.Equal(t, `<img src="/img/content/100/photos/a.png" width="100" height="75" srcset="/img/content/100/photos/a.png 100w, /img/content/200/photos/a.png 200w" sizes="50vw" alt="A photo"/>`, strings.TrimSpace(stdout))

	_, err = run(t, "tag", "--config", conf, "--class", "nope", "/photos/a.png")
	assert.Error(t, err)
}

func TestRewriteCommand(t *testing.T) {
	conf, dir := writeSite(t)
	doc := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(doc, []byte(`<img src="/b.png" data-image-class="content">`), 0644))

	stdout, err := run(t, "rewrite", "--config", conf, doc)
	require.NoError(t, err)
	assert.Contains(t, stdout, `srcset="/img/content/100/b.png 100w"`)
}

func TestWarmCommand(t *testing.T) {
	conf, dir := writeSite(t)

	stdout, err := run(t, "warm", "--config", conf, "-j", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "6 versions")

	files, err := filepath.Glob(filepath.Join(dir, "cache", "*", "*.png"))
	require.NoError(t, err)
	// b.png is copied as is for width 200
	assert.Len(t, files, 6)
}
