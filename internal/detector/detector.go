// Package detector finds image-bearing elements in a document and watches it
// for new ones.
package detector

import (
	"errors"
	"sync"

	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/utils"
)

// WatchedAttributes are the attributes whose changes can alter an element's
// image source.
var WatchedAttributes = []string{"src", "data-src", "data-lazy-src", "style", "class", "poster"}

type trackKey struct {
	element string
	source  string
}

// Detector emits each (element, source) pair at most once until ClearTracking.
type Detector struct {
	doc    *dom.Document
	logger logging.Logger

	mu      sync.Mutex
	tracked map[trackKey]struct{}
	stats   model.DetectorStats
	sub     *Subscription
}

func New(doc *dom.Document, logger logging.Logger) *Detector {
	return &Detector{
		doc:     doc,
		logger:  logger.With(logging.Field{Key: "component", Value: "detector"}),
		tracked: make(map[trackKey]struct{}),
	}
}

// ScanExisting walks the whole document in order and returns every
// image-bearing pair not yet tracked, marking each tracked.
func (d *Detector) ScanExisting() []model.Descriptor {
	found := d.track(d.Candidates())
	d.logger.Debug("scanned document", logging.Field{Key: "new", Value: len(found)})
	return found
}

// Candidates returns every element currently carrying an image, tracked or
// not. Tracking state is left untouched.
func (d *Detector) Candidates() []model.Descriptor {
	var out []model.Descriptor
	for _, el := range d.doc.Elements() {
		out = append(out, Extract(el)...)
	}
	return out
}

// ClearTracking forgets tracked pairs and zeroes the counters.
func (d *Detector) ClearTracking() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracked = make(map[trackKey]struct{})
	d.stats = model.DetectorStats{}
}

func (d *Detector) Stats() model.DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Adopt marks descriptors found elsewhere as tracked, for images the
// document no longer shows, and returns the ones that were not tracked yet.
func (d *Detector) Adopt(descs []model.Descriptor) []model.Descriptor {
	return d.track(descs)
}

// claim tracks the images of els on behalf of sub. Once sub is no longer
// the current subscription nothing is claimed.
func (d *Detector) claim(sub *Subscription, els []*dom.Element) []model.Descriptor {
	var candidates []model.Descriptor
	for _, el := range els {
		candidates = append(candidates, Extract(el)...)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != sub {
		return nil
	}
	return d.trackLocked(candidates)
}

func (d *Detector) track(candidates []model.Descriptor) []model.Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackLocked(candidates)
}

func (d *Detector) trackLocked(candidates []model.Descriptor) []model.Descriptor {
	var out []model.Descriptor
	for _, desc := range candidates {
		k := trackKey{element: desc.ElementID(), source: desc.Source}
		if _, seen := d.tracked[k]; seen {
			continue
		}
		d.tracked[k] = struct{}{}
		d.count(desc.Kind)
		out = append(out, desc)
	}
	return out
}

func (d *Detector) count(k model.Kind) {
	d.stats.TotalImages++
	switch k {
	case model.KindImg:
		d.stats.ImgElements++
	case model.KindBackground:
		d.stats.BackgroundImages++
	case model.KindVideo:
		d.stats.VideoPosters++
	}
}

// Extract returns the images el carries: its img source or video poster
// first, then any background image. A detached element or one whose style
// cannot be read carries none.
func Extract(el *dom.Element) []model.Descriptor {
	if el == nil || !el.Attached() {
		return nil
	}
	base := el.Document().BaseURL()
	var out []model.Descriptor

	switch el.Tag() {
	case "img":
		if src, ok := imgSource(el, base); ok {
			out = append(out, model.Descriptor{Element: el, Source: src, Kind: model.KindImg})
		}
	case "video":
		if poster, ok := el.Attr("poster"); ok {
			if src, ok := locator(base, poster); ok {
				out = append(out, model.Descriptor{Element: el, Source: src, Kind: model.KindVideo})
			}
		}
	}

	if raw, ok := dom.CSSURL(el.ComputedStyle("background-image")); ok {
		if src, ok := locator(base, raw); ok {
			out = append(out, model.Descriptor{Element: el, Source: src, Kind: model.KindBackground})
		}
	}
	return out
}

// imgSource returns the first non-empty of src, data-src and data-lazy-src.
func imgSource(el *dom.Element, base string) (string, bool) {
	for _, name := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := el.Attr(name); ok {
			if src, ok := locator(base, v); ok {
				return src, true
			}
		}
	}
	return "", false
}

// locator resolves raw against base. Blank values carry no image; values
// that cannot be resolved are reported as model.NoSource.
func locator(base, raw string) (string, bool) {
	src, err := utils.ResolveLocator(base, raw)
	switch {
	case err == nil:
		return src, true
	case errors.Is(err, utils.ErrEmptyLocator):
		return "", false
	default:
		return model.NoSource, true
	}
}
