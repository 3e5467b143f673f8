package adaptimg

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ImageType is a raster format the engine can decode and encode.
type ImageType int

const (
	TypeNone ImageType = iota // unsupported or unknown
	TypeJPEG
	TypePNG
	TypeGIF
	TypeBMP
	TypeWEBP // decode only
)

var (
	MimeTypes = map[ImageType]string{
		TypeJPEG: "image/jpeg",
		TypePNG:  "image/png",
		TypeGIF:  "image/gif",
		TypeBMP:  "image/bmp",
		TypeWEBP: "image/webp",
	}

	extensions = map[ImageType]string{
		TypeJPEG: "jpg",
		TypePNG:  "png",
		TypeGIF:  "gif",
		TypeBMP:  "bmp",
		TypeWEBP: "webp",
	}
)

func (t ImageType) Supported() bool {
	return t != TypeNone
}

// Encodable reports whether derivatives can be written in this type.
func (t ImageType) Encodable() bool {
	return t.Supported() && t != TypeWEBP
}

func (t ImageType) MimeType() string {
	mt := MimeTypes[t]
	if mt == "" {
		mt = "application/octet-stream"
	}
	return mt
}

// Extension returns the file extension without the dot.
func (t ImageType) Extension() string {
	return extensions[t]
}

func (t ImageType) String() string {
	switch t {
	case TypeJPEG:
		return "jpeg"
	case TypePNG:
		return "png"
	case TypeGIF:
		return "gif"
	case TypeBMP:
		return "bmp"
	case TypeWEBP:
		return "webp"
	}
	return "none"
}

// ParseImageType accepts a format name or file extension.
func ParseImageType(s string) (ImageType, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "jpg", "jpeg":
		return TypeJPEG, nil
	case "png":
		return TypePNG, nil
	case "gif":
		return TypeGIF, nil
	case "bmp":
		return TypeBMP, nil
	case "webp":
		return TypeWEBP, nil
	}
	return TypeNone, errors.Wrapf(ErrTypeNotSupported, "%q", s)
}

// guessMimeType derives a mime type from the file extension, for files
// that are not a supported bitmap.
func guessMimeType(pathname string) string {
	ext := strings.ToLower(filepath.Ext(pathname))
	if ext == "" {
		return "application/octet-stream"
	}
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}
