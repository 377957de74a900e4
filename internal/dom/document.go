// Package dom holds an observable, mutable HTML document tree.
//
// It plays the part the browser DOM plays for a content script: the pipeline
// reads elements, attributes and computed styles from it, mutates
// presentation in place, and subscribes to mutation records describing
// subtree additions and attribute changes.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

var (
	ErrDetached     = errors.New("element is not attached to the document")
	ErrNilElement   = errors.New("nil element")
	ErrBadSelector  = errors.New("invalid selector")
	ErrNoSuchTarget = errors.New("no element matches selector")
)

// Document is an HTML tree safe for concurrent use. Every mutation made
// through its API is reported to registered observers.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
	base string

	idsMu sync.Mutex
	ids   map[*html.Node]*Element

	sheetMu    sync.Mutex
	sheet      []rule
	sheetValid bool

	obsMu     sync.Mutex
	observers []*Observer
}

// Parse reads an HTML document. baseURL is used to resolve relative
// locators; a <base href> in the document takes precedence.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{
		root: root,
		base: baseURL,
		ids:  make(map[*html.Node]*Element),
	}
	if href := d.baseHref(); href != "" {
		d.base = joinBase(baseURL, href)
	}
	return d, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s, baseURL string) (*Document, error) {
	return Parse(strings.NewReader(s), baseURL)
}

// BaseURL returns the URL relative locators resolve against.
func (d *Document) BaseURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.base
}

func (d *Document) baseHref() string {
	for n := range walk(d.root) {
		if n.Type == html.ElementNode && n.Data == "base" {
			if v, ok := attr(n, "href"); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// Body returns the <body> element, or the root element when absent.
func (d *Document) Body() *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var first *html.Node
	for n := range walk(d.root) {
		if n.Type != html.ElementNode {
			continue
		}
		if first == nil {
			first = n
		}
		if n.Data == "body" {
			return d.wrap(n)
		}
	}
	if first == nil {
		return nil
	}
	return d.wrap(first)
}

// Elements returns every attached element in document order.
func (d *Document) Elements() []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.elementsUnder(d.root, true)
}

// Subtree returns el and its element descendants in document order.
func (d *Document) Subtree(el *Element) []*Element {
	if el == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.elementsUnder(el.node, true)
}

func (d *Document) elementsUnder(n *html.Node, inclusive bool) []*Element {
	var out []*Element
	for c := range walk(n) {
		if c.Type != html.ElementNode || (!inclusive && c == n) {
			continue
		}
		out = append(out, d.wrap(c))
	}
	return out
}

// QueryAll returns the attached elements matching a CSS selector.
func (d *Document) QueryAll(selector string) ([]*Element, error) {
	sel, err := compileSelector(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Element
	goquery.NewDocumentFromNode(d.root).FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s.Get(0)))
	})
	return out, nil
}

// QueryFirst returns the first element matching selector.
func (d *Document) QueryFirst(selector string) (*Element, error) {
	els, err := d.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTarget, selector)
	}
	return els[0], nil
}

// Render serializes the current tree.
func (d *Document) Render() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// wrap returns the stable Element handle for n. Callers hold d.mu.
func (d *Document) wrap(n *html.Node) *Element {
	d.idsMu.Lock()
	defer d.idsMu.Unlock()
	if el, ok := d.ids[n]; ok {
		return el
	}
	el := &Element{id: uuid.NewString(), node: n, doc: d}
	d.ids[n] = el
	return el
}

// attached reports whether n hangs off the document root. Callers hold d.mu.
func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// walk yields n and its descendants in document order.
func walk(n *html.Node) func(func(*html.Node) bool) {
	return func(yield func(*html.Node) bool) {
		var rec func(*html.Node) bool
		rec = func(c *html.Node) bool {
			if !yield(c) {
				return false
			}
			for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
				if !rec(ch) {
					return false
				}
			}
			return true
		}
		if n != nil {
			rec(n)
		}
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func joinBase(baseURL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return baseURL
	}
	b, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
