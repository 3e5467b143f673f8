package responsive

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ClassAttribute marks img elements of a document that
// MakeDocumentResponsive rewrites. Its value is the name of the class.
const ClassAttribute = "data-image-class"

// Helper is the registry of image classes and builds responsive img
// elements from them.
type Helper struct {
	router Router
	Logger logrus.FieldLogger

	mu      sync.RWMutex
	classes map[string]*ImageClass
}

func NewHelper(router Router) *Helper {
	return &Helper{
		router:  router,
		Logger:  logrus.StandardLogger(),
		classes: map[string]*ImageClass{},
	}
}

func (h *Helper) Router() Router {
	return h.router
}

func (h *Helper) AddClass(c *ImageClass) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.classes[c.Name()]; ok {
		return errors.Wrapf(ErrDuplicateClass, "%s", c.Name())
	}
	h.classes[c.Name()] = c
	return nil
}

func (h *Helper) HasClass(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.classes[name]
	return ok
}

func (h *Helper) Class(name string) (*ImageClass, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.classes[name]
	if !ok {
		return nil, errors.Wrapf(ErrClassNotRegistered, "%s", name)
	}
	return c, nil
}

// Classes returns all registered classes ordered by name.
func (h *Helper) Classes() []*ImageClass {
	h.mu.RLock()
	defer h.mu.RUnlock()
	classes := make([]*ImageClass, 0, len(h.classes))
	for _, c := range h.classes {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name() < classes[j].Name() })
	return classes
}

func (h *Helper) ResponsiveImage(url, class string) (*ResponsiveImage, error) {
	c, err := h.Class(class)
	if err != nil {
		return nil, err
	}
	return NewResponsiveImage(h.router, url, c)
}

// MakeImgElementResponsive sets src, width, height, srcset and sizes of
// the img element n. If the image can not be resolved for any reason the
// element is left untouched and false is returned.
func (h *Helper) MakeImgElementResponsive(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode || n.Data != "img" {
		return false
	}
	src, _ := getAttr(n, "src")
	ri, err := h.ResponsiveImage(src, class)
	if err != nil {
		h.logger().WithError(err).WithField("src", src).Debug("img element left as is")
		return false
	}
	for _, a := range responsiveAttrs(ri) {
		setAttr(n, a.Key, a.Val)
	}
	return true
}

// ImgTag renders an img element for url in class. Additional attributes,
// such as alt, are rendered in key order after the responsive ones. Keys
// naming a responsive attribute are ignored.
func (h *Helper) ImgTag(url, class string, attrs map[string]string) (string, error) {
	ri, err := h.ResponsiveImage(url, class)
	if err != nil {
		return "", err
	}

	n := &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img, Attr: responsiveAttrs(ri)}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if !validAttrName(k) {
			return "", errors.Wrapf(ErrInvalidAttribute, "%q", k)
		}
		if !reservedAttrs[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}

	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

var reservedAttrs = map[string]bool{"src": true, "width": true, "height": true, "srcset": true, "sizes": true}

// validAttrName follows the attribute name production of HTML: no
// controls, whitespace, quotes, "<", ">", "/" or "=".
func validAttrName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == utf8.RuneError || strings.ContainsRune("\"'<>/=", r) {
			return false
		}
	}
	return true
}

// MakeDocumentResponsive rewrites every img element carrying
// ClassAttribute and returns how many were rewritten. The marker attribute
// is removed from rewritten elements.
func (h *Helper) MakeDocumentResponsive(doc *goquery.Document) int {
	n := 0
	doc.Find("img[" + ClassAttribute + "]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr(ClassAttribute)
		if h.MakeImgElementResponsive(s.Get(0), class) {
			s.RemoveAttr(ClassAttribute)
			n++
		}
	})
	return n
}

// RewriteHTML reads an HTML document from r and writes it to w with its
// marked img elements made responsive.
func (h *Helper) RewriteHTML(r io.Reader, w io.Writer) (int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, err
	}
	n := h.MakeDocumentResponsive(doc)
	out, err := doc.Html()
	if err != nil {
		return n, err
	}
	_, err = io.WriteString(w, out)
	return n, err
}

func (h *Helper) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

func responsiveAttrs(ri *ResponsiveImage) []html.Attribute {
	def := ri.DefaultImageInfo()
	return []html.Attribute{
		{Key: "src", Val: def.URL},
		{Key: "width", Val: strconv.Itoa(def.Width)},
		{Key: "height", Val: strconv.Itoa(def.Height)},
		{Key: "srcset", Val: ri.SrcsetAttributeValue()},
		{Key: "sizes", Val: ri.SizesAttributeValue()},
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
