package dom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

type declaration struct {
	prop      string
	value     string
	important bool
}

type rule struct {
	sel   cascadia.Sel
	decls []declaration
	order int
}

type candidate struct {
	value     string
	prop      string
	important bool
	inline    bool
	spec      cascadia.Specificity
	order     int
}

// beats reports whether c wins the cascade over o.
func (c candidate) beats(o candidate) bool {
	if c.important != o.important {
		return c.important
	}
	if c.inline != o.inline {
		return c.inline
	}
	if c.spec != o.spec {
		return o.spec.Less(c.spec)
	}
	return c.order > o.order
}

var cssURLRe = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)

// CSSURL extracts the first url(...) locator from a CSS value. "none" and
// empty values yield false.
func CSSURL(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "none") {
		return "", false
	}
	m := cssURLRe.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

// ComputedStyle resolves prop against <style> sheets and the inline style
// attribute. Only the cascade is modelled, not inheritance. background-image
// also honours the background shorthand.
func (e *Element) ComputedStyle(prop string) string {
	prop = strings.ToLower(strings.TrimSpace(prop))
	sheet := e.doc.stylesheet()

	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	props := []string{prop}
	if prop == "background-image" {
		props = append(props, "background")
	}

	var best *candidate
	consider := func(c candidate) {
		if best == nil || c.beats(*best) {
			cc := c
			best = &cc
		}
	}
	for _, r := range sheet {
		if !r.sel.Match(e.node) {
			continue
		}
		for i, d := range r.decls {
			if contains(props, d.prop) {
				consider(candidate{value: d.value, prop: d.prop, important: d.important, spec: r.sel.Specificity(), order: r.order*1000 + i})
			}
		}
	}
	if inline, ok := attr(e.node, "style"); ok {
		for i, d := range parseDeclarations(inline) {
			if contains(props, d.prop) {
				consider(candidate{value: d.value, prop: d.prop, important: d.important, inline: true, order: i})
			}
		}
	}
	if best == nil {
		return ""
	}
	if prop == "background-image" && best.prop == "background" {
		if u, ok := CSSURL(best.value); ok {
			return `url("` + u + `")`
		}
		return "none"
	}
	return best.value
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// stylesheet returns the rules of every <style> element, rebuilding the cache
// after child-list mutations.
func (d *Document) stylesheet() []rule {
	d.sheetMu.Lock()
	defer d.sheetMu.Unlock()
	if d.sheetValid {
		return d.sheet
	}
	d.mu.RLock()
	var texts []string
	for n := range walk(d.root) {
		if n.Type == html.ElementNode && n.Data == "style" {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			texts = append(texts, b.String())
		}
	}
	d.mu.RUnlock()

	var rules []rule
	for _, t := range texts {
		rules = append(rules, parseStylesheet(t, len(rules))...)
	}
	d.sheet = rules
	d.sheetValid = true
	return rules
}

func (d *Document) invalidateStyles() {
	d.sheetMu.Lock()
	d.sheetValid = false
	d.sheet = nil
	d.sheetMu.Unlock()
}

// parseStylesheet reads the qualified rules of one <style> block. At-rules
// are skipped with their nested rules, selectors cascadia rejects are
// dropped, and a sheet that fails to parse contributes nothing.
func parseStylesheet(src string, startOrder int) []rule {
	sheet, err := parser.Parse(src)
	if err != nil || sheet == nil {
		return nil
	}
	var rules []rule
	order := startOrder
	for _, r := range sheet.Rules {
		if r.Kind != css.QualifiedRule {
			continue
		}
		decls := fromCSS(r.Declarations)
		for _, text := range r.Selectors {
			group, err := cascadia.ParseGroup(text)
			if err != nil {
				continue
			}
			for _, sel := range group {
				if sel.PseudoElement() != "" {
					continue
				}
				rules = append(rules, rule{sel: sel, decls: decls, order: order})
				order++
			}
		}
	}
	return rules
}

// parseDeclarations reads an inline style value. Malformed input yields no
// declarations.
func parseDeclarations(s string) []declaration {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.HasSuffix(s, ";") {
		s += ";"
	}
	decls, err := parser.ParseDeclarations(s)
	if err != nil {
		return nil
	}
	return fromCSS(decls)
}

func fromCSS(decls []*css.Declaration) []declaration {
	out := make([]declaration, 0, len(decls))
	for _, d := range decls {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(d.Value), important: d.Important})
	}
	return out
}

// formatDeclarations renders declarations back into an inline style value.
func formatDeclarations(decls []declaration) string {
	var b strings.Builder
	for i, d := range decls {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.prop)
		b.WriteString(": ")
		b.WriteString(d.value)
		if d.important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

func compileSelector(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBadSelector, selector, err)
	}
	return sel, nil
}
