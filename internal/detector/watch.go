package detector

import (
	"slices"
	"sync"

	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
)

// Subscription is a live watch on the document. Close is idempotent.
type Subscription struct {
	obs  *dom.Observer
	once sync.Once
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.obs.Disconnect)
}

// Active reports whether the subscription still delivers.
func (s *Subscription) Active() bool {
	return s != nil && s.obs.Connected()
}

// StartWatching reports newly discovered, untracked descriptors to onNew in
// discovery order. Calls come from the document's notification goroutine,
// one batch at a time. Any previous subscription is closed first.
func (d *Detector) StartWatching(onNew func([]model.Descriptor)) *Subscription {
	d.StopWatching()

	opts := dom.ObserveOptions{ChildList: true, Attributes: true, AttributeFilter: WatchedAttributes}
	sub := &Subscription{}
	ready := make(chan struct{})
	sub.obs = d.doc.Observe(opts, func(records []dom.MutationRecord) {
		<-ready
		if !sub.Active() {
			return
		}
		found := d.claim(sub, affected(d.doc, records))
		if len(found) == 0 {
			return
		}
		d.logger.Debug("found new images", logging.Field{Key: "count", Value: len(found)})
		onNew(found)
	})

	d.mu.Lock()
	d.sub = sub
	d.mu.Unlock()
	close(ready)
	return sub
}

// StopWatching ends the current subscription, if any.
func (d *Detector) StopWatching() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	sub.Close()
}

// Watching reports whether a subscription is live.
func (d *Detector) Watching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sub.Active()
}

// affected lists the elements a batch of records may have given an image:
// whole added subtrees and attribute targets, each once, in record order.
func affected(doc *dom.Document, records []dom.MutationRecord) []*dom.Element {
	var out []*dom.Element
	seen := make(map[*dom.Element]struct{})
	add := func(el *dom.Element) {
		if _, ok := seen[el]; ok {
			return
		}
		seen[el] = struct{}{}
		out = append(out, el)
	}
	for _, r := range records {
		switch r.Type {
		case dom.ChildList:
			for _, root := range r.Added {
				for _, el := range doc.Subtree(root) {
					add(el)
				}
			}
			// New <style> content can give existing elements a background.
			if slices.ContainsFunc(r.Added, isStyleSheet) {
				for _, el := range doc.Elements() {
					add(el)
				}
			}
		case dom.Attributes:
			add(r.Target)
		}
	}
	return out
}

func isStyleSheet(el *dom.Element) bool {
	return el.Tag() == "style"
}
