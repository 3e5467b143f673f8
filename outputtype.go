package adaptimg

import (
	"fmt"
	"sync"
)

var (
	DefaultJPEGQuality          = 85
	DefaultPNGCompressionLevel  = 7
	DefaultPNGCompressionFilter = 5
)

// OutputTypeOptions describe how a derivative is encoded: its type and
// extension, encode options and filters applied right before saving.
type OutputTypeOptions struct {
	Type              ImageType
	Quality           int
	CompressionLevel  int
	CompressionFilter int
	Progressive       bool
}

func JPEGOutput(quality int, progressive bool) OutputTypeOptions {
	return OutputTypeOptions{Type: TypeJPEG, Quality: quality, Progressive: progressive}
}

func PNGOutput(level, filter int) OutputTypeOptions {
	return OutputTypeOptions{Type: TypePNG, CompressionLevel: level, CompressionFilter: filter}
}

func GIFOutput() OutputTypeOptions {
	return OutputTypeOptions{Type: TypeGIF}
}

func (o OutputTypeOptions) Extension() string {
	return o.Type.Extension()
}

// Filters returns the filters needed by the output type, or nil.
func (o OutputTypeOptions) Filters() *FilterChain {
	if o.Type == TypeJPEG && o.Progressive {
		return NewFilterChain(NewInterlace(InterlaceLine))
	}
	return nil
}

func (o OutputTypeOptions) SaveOptions() SaveOptions {
	so := SaveOptions{Format: o.Type, Progressive: o.Progressive}
	switch o.Type {
	case TypeJPEG:
		so.JPEGQuality = o.Quality
	case TypePNG:
		so.PNGCompressionLevel = o.CompressionLevel
		so.PNGCompressionFilter = o.CompressionFilter
	}
	return so
}

func (o OutputTypeOptions) String() string {
	return fmt.Sprintf("%s(q=%d,l=%d,f=%d,p=%t)", o.Type, o.Quality, o.CompressionLevel, o.CompressionFilter, o.Progressive)
}

// OutputTypeMap maps the type of a source image to the options of its
// derivative. Input types without an entry use the default type's entry.
type OutputTypeMap struct {
	mu          sync.RWMutex
	m           map[ImageType]OutputTypeOptions
	defaultType ImageType
}

// NewOutputTypeMap keeps GIF, PNG and JPEG in their own type and uses JPEG
// for everything else.
func NewOutputTypeMap() *OutputTypeMap {
	return &OutputTypeMap{
		m: map[ImageType]OutputTypeOptions{
			TypeGIF:  GIFOutput(),
			TypePNG:  PNGOutput(DefaultPNGCompressionLevel, DefaultPNGCompressionFilter),
			TypeJPEG: JPEGOutput(DefaultJPEGQuality, false),
		},
		defaultType: TypeJPEG,
	}
}

func (m *OutputTypeMap) Get(input ImageType) OutputTypeOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.m[input]; ok {
		return o
	}
	return m.m[m.defaultType]
}

func (m *OutputTypeMap) Set(input ImageType, o OutputTypeOptions) *OutputTypeMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[input] = o
	return m
}

// SetDefaultType selects the entry used for unknown input types. It must
// have an entry of its own.
func (m *OutputTypeMap) SetDefaultType(t ImageType) *OutputTypeMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultType = t
	return m
}
