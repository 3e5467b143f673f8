// Package responsive derives the width variants of an image for HTML
// srcset and sizes attributes from a set of resize definitions.
package responsive

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
)

var (
	ErrClassNotRegistered = errors.New("responsive image class not registered")
	ErrWidthNotAllowed    = errors.New("width not allowed for responsive image class")
	ErrDuplicateClass     = errors.New("responsive image class already registered")
	ErrInvalidAttribute   = errors.New("invalid img attribute name")
	ErrInvalidClass       = errors.Wrap(adaptimg.ErrInvalidDefinition, "invalid responsive image class")
)

// Router finds original images by their URL and builds the URLs of their
// resized versions. It depends on the routing of the application.
type Router interface {
	// OriginalImageFileInfo inspects the original image behind url. It
	// fails with adaptimg.ErrImageNotFound when there is none.
	OriginalImageFileInfo(url string) (*adaptimg.ImageFileInfo, error)

	// GenerateURL returns the URL of url resized for class at width.
	GenerateURL(url, class string, width int) string
}

// Resizer generates derivatives, usually an *adaptimg.ImageResizer.
type Resizer interface {
	Resize(ctx context.Context, def *adaptimg.ImageResizeDefinition, src *adaptimg.ImageFileInfo, reallyDoIt bool, pre *adaptimg.FilterChain) (*adaptimg.ImageFileInfo, error)
}

// WebImageInfo describes one version of an image as seen by a browser.
type WebImageInfo struct {
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`
}
