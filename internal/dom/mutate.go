package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Template describes an element to create.
type Template struct {
	Tag   string
	Attrs []html.Attribute
	Text  string
}

func (t Template) build() *html.Node {
	tag := strings.ToLower(t.Tag)
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     append([]html.Attribute(nil), t.Attrs...),
	}
	if t.Text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: t.Text})
	}
	return n
}

// AppendHTML parses fragment in the context of parent and appends the
// result. The new top-level elements are returned.
func (d *Document) AppendHTML(parent *Element, fragment string) ([]*Element, error) {
	if parent == nil {
		return nil, ErrNilElement
	}
	d.mu.Lock()
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	var added []*Element
	for _, n := range nodes {
		parent.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	live := d.attached(parent.node)
	d.mu.Unlock()

	if live && len(added) > 0 {
		d.childListChanged(MutationRecord{Type: ChildList, Target: parent, Added: added})
	}
	return added, nil
}

// AppendChild creates an element from t as the last child of parent.
func (d *Document) AppendChild(parent *Element, t Template) (*Element, error) {
	if parent == nil {
		return nil, ErrNilElement
	}
	d.mu.Lock()
	n := t.build()
	parent.node.AppendChild(n)
	el := d.wrap(n)
	live := d.attached(parent.node)
	d.mu.Unlock()

	if live {
		d.childListChanged(MutationRecord{Type: ChildList, Target: parent, Added: []*Element{el}})
	}
	return el, nil
}

// InsertBefore creates an element from t as the previous sibling of ref.
func (d *Document) InsertBefore(ref *Element, t Template) (*Element, error) {
	if ref == nil {
		return nil, ErrNilElement
	}
	d.mu.Lock()
	p := ref.node.Parent
	if p == nil {
		d.mu.Unlock()
		return nil, ErrDetached
	}
	n := t.build()
	p.InsertBefore(n, ref.node)
	el := d.wrap(n)
	target := d.wrap(p)
	live := d.attached(p)
	d.mu.Unlock()

	if live {
		d.childListChanged(MutationRecord{Type: ChildList, Target: target, Added: []*Element{el}})
	}
	return el, nil
}

// Remove detaches el from its parent. Removing a detached element is a no-op.
func (d *Document) Remove(el *Element) error {
	if el == nil {
		return ErrNilElement
	}
	d.mu.Lock()
	p := el.node.Parent
	if p == nil {
		d.mu.Unlock()
		return nil
	}
	live := d.attached(p)
	p.RemoveChild(el.node)
	target := d.wrap(p)
	d.mu.Unlock()

	if live {
		d.childListChanged(MutationRecord{Type: ChildList, Target: target, Removed: []*Element{el}})
	}
	return nil
}

// SetAttr sets an attribute, recording the previous value.
func (e *Element) SetAttr(name, value string) {
	name = strings.ToLower(name)
	d := e.doc
	d.mu.Lock()
	old, _ := attr(e.node, name)
	replaced := false
	for i := range e.node.Attr {
		if e.node.Attr[i].Namespace == "" && e.node.Attr[i].Key == name {
			e.node.Attr[i].Val = value
			replaced = true
			break
		}
	}
	if !replaced {
		e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	}
	live := d.attached(e.node)
	d.mu.Unlock()

	if live {
		d.notify([]MutationRecord{{Type: Attributes, Target: e, AttributeName: name, OldValue: old}})
	}
}

// RemoveAttr deletes an attribute. Removing an absent attribute does nothing.
func (e *Element) RemoveAttr(name string) {
	name = strings.ToLower(name)
	d := e.doc
	d.mu.Lock()
	old, had := attr(e.node, name)
	if !had {
		d.mu.Unlock()
		return
	}
	kept := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	e.node.Attr = kept
	live := d.attached(e.node)
	d.mu.Unlock()

	if live {
		d.notify([]MutationRecord{{Type: Attributes, Target: e, AttributeName: name, OldValue: old}})
	}
}

// InlineStyle returns the inline value of prop, or "" when unset.
func (e *Element) InlineStyle(prop string) string {
	prop = strings.ToLower(prop)
	v, _ := e.Attr("style")
	for _, d := range parseDeclarations(v) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// SetStyle sets one inline style property; an empty value removes it. The
// style attribute is dropped once it holds no declarations.
func (e *Element) SetStyle(prop, value string) {
	prop = strings.ToLower(strings.TrimSpace(prop))
	cur, _ := e.Attr("style")
	decls := parseDeclarations(cur)

	var out []declaration
	set := false
	for _, d := range decls {
		if d.prop != prop {
			out = append(out, d)
			continue
		}
		if value != "" && !set {
			out = append(out, declaration{prop: prop, value: value})
			set = true
		}
	}
	if value != "" && !set {
		out = append(out, declaration{prop: prop, value: value})
	}
	if len(out) == 0 {
		e.RemoveAttr("style")
		return
	}
	e.SetAttr("style", formatDeclarations(out))
}

func (d *Document) childListChanged(r MutationRecord) {
	d.invalidateStyles()
	d.notify([]MutationRecord{r})
}
