// Package filter turns classification results into allow/block decisions and
// applies them to the document, keeping statistics that always equal the sum
// of the dispositions it currently holds.
package filter

import (
	"sync"

	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/utils"
)

// Finder lists every image-bearing element currently in the document.
type Finder interface {
	Candidates() []model.Descriptor
}

// slot identifies one image channel of an element.
type slot struct {
	element string
	kind    model.Kind
}

type decision struct {
	desc        model.Descriptor
	disposition model.Disposition
}

type Filter struct {
	finder Finder
	logger logging.Logger

	mu       sync.Mutex
	settings model.Settings
	decided  map[slot]decision
	order    []slot
	hidden   map[string]*hiddenState
}

func New(finder Finder, settings model.Settings, logger logging.Logger) *Filter {
	return &Filter{
		finder:   finder,
		logger:   logger.With(logging.Field{Key: "component", Value: "filter"}),
		settings: settings.Clone(),
		decided:  make(map[slot]decision),
		hidden:   make(map[string]*hiddenState),
	}
}

// Decide applies allow-list, then block-list, then the classifier verdict.
// result.Severity is already the effective severity.
func (f *Filter) Decide(desc model.Descriptor, result *model.Result) model.Disposition {
	f.mu.Lock()
	s := f.settings
	f.mu.Unlock()

	if rule, ok := utils.MatchesAny(desc.Source, s.AllowList); ok {
		f.logger.Debug("allow-listed", logging.Field{Key: "src", Value: desc.Source}, logging.Field{Key: "rule", Value: rule})
		return model.Allow
	}
	if rule, ok := utils.MatchesAny(desc.Source, s.BlockList); ok {
		f.logger.Debug("block-listed", logging.Field{Key: "src", Value: desc.Source}, logging.Field{Key: "rule", Value: rule})
		return model.Block
	}
	if result != nil && (result.IsProblematic || result.Severity > s.SeverityThreshold) {
		return model.Block
	}
	return model.Allow
}

// Apply records the disposition of desc and updates its presentation. Block
// hides idempotently; allow restores an element hidden earlier. Re-deciding
// an element replaces its previous disposition.
func (f *Filter) Apply(desc model.Descriptor, d model.Disposition) {
	if desc.Element == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	k := slot{element: desc.ElementID(), kind: desc.Kind}
	if _, seen := f.decided[k]; !seen {
		f.order = append(f.order, k)
	}
	f.decided[k] = decision{desc: desc, disposition: d}

	switch d {
	case model.Block:
		if f.hideLocked(desc) {
			f.logger.Info("blocked image",
				logging.Field{Key: "kind", Value: string(desc.Kind)},
				logging.Field{Key: "src", Value: desc.Source})
		}
	case model.Allow:
		f.restoreLocked(desc.Element, desc.Kind)
	}
}

// Hide conceals desc without recording a disposition; used before the
// classification of desc completes.
func (f *Filter) Hide(desc model.Descriptor) {
	if desc.Element == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hideLocked(desc)
}

// HideAll hides every candidate the finder reports and returns how many were
// newly hidden.
func (f *Filter) HideAll() int {
	descs := f.finder.Candidates()
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range descs {
		if f.hideLocked(d) {
			n++
		}
	}
	f.logger.Debug("hid all candidates", logging.Field{Key: "count", Value: n})
	return n
}

// ClearAll restores every hidden element exactly, removes inserted nodes and
// forgets every disposition.
func (f *Filter) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, st := range f.hidden {
		st.restoreAll()
		delete(f.hidden, id)
	}
	f.decided = make(map[slot]decision)
	f.order = nil
}

// Decided returns the descriptors holding a disposition, in first-decision
// order.
func (f *Filter) Decided() []model.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Descriptor, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, f.decided[k].desc)
	}
	return out
}

// Disposition returns the recorded disposition of desc, if any.
func (f *Filter) Disposition(desc model.Descriptor) (model.Disposition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decided[slot{element: desc.ElementID(), kind: desc.Kind}]
	return d.disposition, ok
}

// IsHidden reports whether the given channel of desc's element is hidden.
func (f *Filter) IsHidden(desc model.Descriptor) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.hidden[desc.ElementID()]
	return ok && st.kinds[desc.Kind]
}

func (f *Filter) UpdateSettings(p model.SettingsPatch) model.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = p.Apply(f.settings)
	return f.settings.Clone()
}

func (f *Filter) Settings() model.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone()
}

// Stats is derived from the recorded dispositions.
func (f *Filter) Stats() model.FilterStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.FilterStats{BlockedByKind: make(map[model.Kind]int)}
	for _, d := range f.decided {
		s.TotalProcessed++
		switch d.disposition {
		case model.Block:
			s.TotalBlocked++
			s.BlockedByKind[d.desc.Kind]++
		case model.Allow:
			s.TotalAllowed++
		}
	}
	for _, st := range f.hidden {
		s.Hidden += len(st.kinds)
	}
	return s
}

// hideLocked reports whether anything changed.
func (f *Filter) hideLocked(desc model.Descriptor) bool {
	id := desc.ElementID()
	st, ok := f.hidden[id]
	if !ok {
		st = newHiddenState(desc.Element)
		f.hidden[id] = st
	}
	if st.kinds[desc.Kind] {
		return false
	}
	st.hide(desc.Kind, f.logger)
	return true
}

func (f *Filter) restoreLocked(el *dom.Element, kind model.Kind) {
	st, ok := f.hidden[el.ID()]
	if !ok || !st.kinds[kind] {
		return
	}
	st.restore(kind)
	if len(st.kinds) == 0 {
		delete(f.hidden, el.ID())
	}
}
