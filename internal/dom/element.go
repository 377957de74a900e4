package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Element is a stable handle to one element node of a Document. Handles are
// compared by identity; the same node always yields the same *Element.
type Element struct {
	id   string
	node *html.Node
	doc  *Document
}

// ID is an opaque identifier unique within the process.
func (e *Element) ID() string { return e.id }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.node.Data
}

// Attached reports whether the element is still part of the document tree.
func (e *Element) Attached() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.attached(e.node)
}

// Attr returns the value of an attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, strings.ToLower(name))
}

// AttrOr returns the attribute value or def when it is absent.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// HasClass reports whether the class attribute contains class.
func (e *Element) HasClass(class string) bool {
	v, _ := e.Attr("class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return e.doc.wrap(p)
		}
	}
	return nil
}

// Text returns the concatenated text content of the element.
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var b strings.Builder
	for n := range walk(e.node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return b.String()
}

// Size returns the element's layout box as declared by width/height
// attributes or pixel style values. Unknown dimensions are 0.
func (e *Element) Size() (width, height float64) {
	width = e.dimension("width")
	height = e.dimension("height")
	return width, height
}

func (e *Element) dimension(name string) float64 {
	if v, ok := e.Attr(name); ok {
		if f, ok := parsePixels(v); ok {
			return f
		}
	}
	if f, ok := parsePixels(e.ComputedStyle(name)); ok {
		return f
	}
	return 0
}

func parsePixels(v string) (float64, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimSuffix(v, "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
