package adaptimg

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// OutputPathGenerator maps a source image, a resize definition, an
// additional pre transformation and the output extension to the path of
// the cached derivative. Equal inputs must give equal paths.
type OutputPathGenerator interface {
	OutputPath(src *ImageFileInfo, def *ImageResizeDefinition, extension string, additional *FilterChain) string
}

// BasedirPathGenerator lays derivatives out as
//
//	basedir/<hash of resize transformation>/<hash of source and additional transformation>.<ext>
//
// Changing a definition moves its derivatives into a new directory, so old
// entries simply stop being referenced.
type BasedirPathGenerator struct {
	basedir string
}

func NewBasedirPathGenerator(basedir string) *BasedirPathGenerator {
	return &BasedirPathGenerator{basedir: basedir}
}

func (g *BasedirPathGenerator) Basedir() string {
	return g.basedir
}

func (g *BasedirPathGenerator) OutputPath(src *ImageFileInfo, def *ImageResizeDefinition, extension string, additional *FilterChain) string {
	// Post filters do not take part in the definition hash, so they are
	// folded into the per-file hash.
	extra := Compose(additional, def.PostTransformation())
	name := hashString(src.Pathname() + hashString(extra.Descriptor()))
	if extension != "" {
		name += "." + extension
	}
	return filepath.Join(g.basedir, def.TransformationHash(), name)
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
