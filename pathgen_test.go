package adaptimg

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasedirPathGenerator(t *testing.T) {
	g := NewBasedirPathGenerator("/var/cache/img")
	src := NewImageFileInfo("/srv/img/a.jpg", 800, 600, TypeJPEG, time.Now(), 0)
	def := MustImageResizeDefinition(300, Fixed(300), ModeMax, false)

	p := g.OutputPath(src, def, "jpg", nil)
	assert.True(t, strings.HasPrefix(p, "/var/cache/img/"+def.TransformationHash()+"/"))
	assert.Equal(t, ".jpg", filepath.Ext(p))

	// independently built definitions share their paths
	same := MustImageResizeDefinition(300, Fixed(300), ModeMax, false)
	assert.Equal(t, p, g.OutputPath(src, same, "jpg", nil))
	assert.Equal(t, p, g.OutputPath(src, def, "jpg", NewFilterChain()))

	seen := map[string]string{"base": p}
	add := func(name, path string) {
		for other, q := range seen {
			assert.NotEqual(t, q, path, "%s collides with %s", name, other)
		}
		seen[name] = path
	}

	add("ext", g.OutputPath(src, def, "png", nil))
	add("source", g.OutputPath(NewImageFileInfo("/srv/img/b.jpg", 800, 600, TypeJPEG, time.Now(), 0), def, "jpg", nil))
	add("pre", g.OutputPath(src, def, "jpg", NewFilterChain(NewFixOrientation(6))))

	changed := MustImageResizeDefinition(300, Fixed(300), ModeMax, false).AddFilter(NewSharpen(), 0)
	add("resize filter", g.OutputPath(src, changed, "jpg", nil))

	post := MustImageResizeDefinition(300, Fixed(300), ModeMax, false).AddPostFilter(NewStrip(), 0)
	add("post filter", g.OutputPath(src, post, "jpg", nil))
	assert.Equal(t, filepath.Dir(p), filepath.Dir(seen["post filter"]))
}
