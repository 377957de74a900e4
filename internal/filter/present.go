package filter

import (
	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"golang.org/x/net/html"
)

const (
	// PlaceholderClass marks the box inserted in place of a blocked img.
	PlaceholderClass = "cleanweb-blocked-image"
	// IndicatorClass marks the overlay appended to a blocked background.
	IndicatorClass = "cleanweb-blocked-indicator"

	neutralFill = "#f0f0f0"
	// indicatorMin is the rendered size, in pixels, both sides must exceed
	// before a background gets an overlay.
	indicatorMin = 50

	placeholderStyle = "display: inline-block; background: #f0f0f0; border: 2px dashed #ccc; padding: 20px; " +
		"text-align: center; color: #666; font-family: Arial, sans-serif; font-size: 14px;"
	indicatorStyle = "position: absolute; top: 50%; left: 50%; transform: translate(-50%, -50%); " +
		"font-size: 24px; z-index: 1000;"
)

// hiddenState remembers how to put an element back. The raw style and poster
// attributes are captured when the first channel is hidden.
type hiddenState struct {
	el        *dom.Element
	style     string
	hadStyle  bool
	poster    string
	hadPoster bool
	kinds     map[model.Kind]bool
	inserted  map[model.Kind]*dom.Element
}

func newHiddenState(el *dom.Element) *hiddenState {
	st := &hiddenState{
		el:       el,
		kinds:    make(map[model.Kind]bool),
		inserted: make(map[model.Kind]*dom.Element),
	}
	st.style, st.hadStyle = el.Attr("style")
	st.poster, st.hadPoster = el.Attr("poster")
	return st
}

func (st *hiddenState) hide(kind model.Kind, logger logging.Logger) {
	st.kinds[kind] = true
	st.conceal(kind)
	m, err := st.marker(kind)
	if err != nil {
		logger.Debug("could not insert marker",
			logging.Field{Key: "element", Value: st.el.ID()},
			logging.Field{Key: "error", Value: err})
		return
	}
	if m != nil {
		st.inserted[kind] = m
	}
}

// conceal applies the attribute changes for one channel. It is safe to
// repeat.
func (st *hiddenState) conceal(kind model.Kind) {
	el := st.el
	switch kind {
	case model.KindImg:
		el.SetStyle("display", "none")
	case model.KindBackground:
		el.SetStyle("background-image", "none")
		el.SetStyle("background-color", neutralFill)
		if large(el) {
			if pos := el.ComputedStyle("position"); pos == "" || pos == "static" {
				el.SetStyle("position", "relative")
			}
		}
	case model.KindVideo:
		// Emptied in place so a restore keeps the attribute order.
		el.SetAttr("poster", "")
	}
}

func (st *hiddenState) marker(kind model.Kind) (*dom.Element, error) {
	el := st.el
	doc := el.Document()
	switch kind {
	case model.KindImg:
		return doc.InsertBefore(el, dom.Template{
			Tag: "div",
			Attrs: []html.Attribute{
				{Key: "class", Val: PlaceholderClass},
				{Key: "style", Val: placeholderStyle},
				{Key: "data-cleanweb-for", Val: el.ID()},
			},
			Text: "🚫 Image blocked by CleanWeb",
		})
	case model.KindBackground:
		if !large(el) {
			return nil, nil
		}
		return doc.AppendChild(el, dom.Template{
			Tag: "div",
			Attrs: []html.Attribute{
				{Key: "class", Val: IndicatorClass},
				{Key: "style", Val: indicatorStyle},
			},
			Text: "🚫",
		})
	}
	return nil, nil
}

// restore reveals one channel, keeping any other channel hidden.
func (st *hiddenState) restore(kind model.Kind) {
	delete(st.kinds, kind)
	st.removeMarker(kind)
	st.reset()
	for k := range st.kinds {
		st.conceal(k)
	}
}

func (st *hiddenState) restoreAll() {
	for k := range st.inserted {
		st.removeMarker(k)
	}
	st.kinds = make(map[model.Kind]bool)
	st.reset()
}

func (st *hiddenState) removeMarker(kind model.Kind) {
	if m, ok := st.inserted[kind]; ok {
		_ = m.Document().Remove(m)
		delete(st.inserted, kind)
	}
}

// reset puts back the captured attributes verbatim.
func (st *hiddenState) reset() {
	if st.hadStyle {
		st.el.SetAttr("style", st.style)
	} else {
		st.el.RemoveAttr("style")
	}
	if st.hadPoster {
		if cur, ok := st.el.Attr("poster"); !ok || cur != st.poster {
			st.el.SetAttr("poster", st.poster)
		}
	}
}

func large(el *dom.Element) bool {
	w, h := el.Size()
	return w > indicatorMin && h > indicatorMin
}
