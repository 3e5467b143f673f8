package adaptimg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageFileInfo describes an image file, either an existing one or a
// derivative that has not been generated yet. It is never modified after
// construction.
type ImageFileInfo struct {
	pathname    string
	width       int
	height      int
	imageType   ImageType
	mimeType    string
	modTime     time.Time
	orientation int
}

// NewImageFileInfo synthesizes an ImageFileInfo. A zero modTime describes a
// file that does not exist yet.
func NewImageFileInfo(pathname string, width, height int, t ImageType, modTime time.Time, orientation int) *ImageFileInfo {
	ifi := &ImageFileInfo{
		pathname:    pathname,
		imageType:   t,
		modTime:     modTime,
		orientation: orientation,
	}
	if t.Supported() {
		ifi.width, ifi.height = width, height
		ifi.mimeType = t.MimeType()
	} else {
		ifi.mimeType = guessMimeType(pathname)
	}
	return ifi
}

var signatures = []struct {
	magic []byte
	t     ImageType
}{
	{[]byte("\xff\xd8\xff"), TypeJPEG},
	{[]byte("\x89PNG\r\n\x1a\n"), TypePNG},
	{[]byte("GIF87a"), TypeGIF},
	{[]byte("GIF89a"), TypeGIF},
}

// DIB header sizes following the 14 byte BMP file header.
var bmpInfoHeaderSizes = map[uint32]bool{12: true, 40: true, 52: true, 56: true, 64: true, 108: true, 124: true}

func sniffType(head []byte) ImageType {
	for _, sig := range signatures {
		if bytes.HasPrefix(head, sig.magic) {
			return sig.t
		}
	}
	if len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WEBP" {
		return TypeWEBP
	}
	if len(head) >= 18 && string(head[:2]) == "BM" && bmpInfoHeaderSizes[binary.LittleEndian.Uint32(head[14:18])] {
		return TypeBMP
	}
	return TypeNone
}

// InspectFile reads size, type and EXIF orientation of the file at
// pathname. A file that is no JPEG, PNG, GIF, BMP or WebP is described with TypeNone
// and a zero size. A file with a bitmap signature whose dimensions can not
// be read fails with ErrImageUnreadable.
func InspectFile(pathname string) (*ImageFileInfo, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, errors.Wrapf(ErrImageNotFound, "%s: %v", pathname, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		return nil, errors.Wrap(ErrImageNotFound, pathname)
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(18)

	t := sniffType(head)
	if t == TypeNone {
		return NewImageFileInfo(pathname, 0, 0, TypeNone, st.ModTime(), 0), nil
	}

	cfg, _, err := image.DecodeConfig(br)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Wrapf(ErrImageUnreadable, "%s", pathname)
	}

	orientation := 0
	if t == TypeJPEG {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			orientation = readOrientation(f)
		}
	}

	return NewImageFileInfo(pathname, cfg.Width, cfg.Height, t, st.ModTime(), orientation), nil
}

func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil || o < 0 || o > 8 {
		return 0
	}
	return o
}

func (i *ImageFileInfo) Pathname() string {
	return i.pathname
}

func (i *ImageFileInfo) Filename() string {
	return filepath.Base(i.pathname)
}

func (i *ImageFileInfo) Width() int {
	return i.width
}

func (i *ImageFileInfo) Height() int {
	return i.height
}

func (i *ImageFileInfo) Size() Box {
	return Box{Width: i.width, Height: i.height}
}

func (i *ImageFileInfo) Type() ImageType {
	return i.imageType
}

func (i *ImageFileInfo) MimeType() string {
	return i.mimeType
}

// ModTime is the zero time for files that do not exist yet.
func (i *ImageFileInfo) ModTime() time.Time {
	return i.modTime
}

// Orientation is the EXIF orientation, 0 or 1 mean normal.
func (i *ImageFileInfo) Orientation() int {
	return i.orientation
}

func (i *ImageFileInfo) NeedsOrientationFix() bool {
	return i.orientation > 1 && i.orientation <= 8
}
