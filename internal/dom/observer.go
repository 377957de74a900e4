package dom

import (
	"slices"
	"sync"
	"sync/atomic"
)

type MutationType int

const (
	ChildList MutationType = iota
	Attributes
)

func (t MutationType) String() string {
	if t == Attributes {
		return "attributes"
	}
	return "childList"
}

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type          MutationType
	Target        *Element
	Added         []*Element
	Removed       []*Element
	AttributeName string
	OldValue      string
}

// ObserveOptions selects which records an observer receives. The whole
// document is always observed.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
	// AttributeFilter limits attribute records to these names; empty means all.
	AttributeFilter []string
}

func (o ObserveOptions) wants(r MutationRecord) bool {
	switch r.Type {
	case ChildList:
		return o.ChildList
	case Attributes:
		if !o.Attributes {
			return false
		}
		return len(o.AttributeFilter) == 0 || slices.Contains(o.AttributeFilter, r.AttributeName)
	}
	return false
}

// Observer receives batches of mutation records on its own goroutine, in the
// order the mutations happened. Records produced while a batch is being
// handled are delivered in the next batch.
type Observer struct {
	doc  *Document
	opts ObserveOptions
	fn   func([]MutationRecord)

	mu      sync.Mutex
	pending []MutationRecord

	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// Observe registers fn for mutation records matching opts.
func (d *Document) Observe(opts ObserveOptions, fn func([]MutationRecord)) *Observer {
	o := &Observer{
		doc:  d,
		opts: opts,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
	go o.loop()
	return o
}

// Disconnect stops delivery. Records still queued are discarded. Safe to
// call more than once and from inside the callback.
func (o *Observer) Disconnect() {
	o.once.Do(func() {
		o.closed.Store(true)
		close(o.done)
		o.doc.removeObserver(o)
	})
}

// Connected reports whether the observer still receives records.
func (o *Observer) Connected() bool {
	return !o.closed.Load()
}

func (o *Observer) enqueue(records []MutationRecord) {
	if o.closed.Load() {
		return
	}
	o.mu.Lock()
	for _, r := range records {
		if o.opts.wants(r) {
			o.pending = append(o.pending, r)
		}
	}
	n := len(o.pending)
	o.mu.Unlock()
	if n == 0 {
		return
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Observer) loop() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
			o.mu.Lock()
			batch := o.pending
			o.pending = nil
			o.mu.Unlock()
			if len(batch) > 0 && !o.closed.Load() {
				o.fn(batch)
			}
		}
	}
}

func (d *Document) removeObserver(o *Observer) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = slices.DeleteFunc(d.observers, func(x *Observer) bool { return x == o })
}

// notify fans records out to observers. Must be called without d.mu held.
func (d *Document) notify(records []MutationRecord) {
	if len(records) == 0 {
		return
	}
	d.obsMu.Lock()
	obs := slices.Clone(d.observers)
	d.obsMu.Unlock()
	for _, o := range obs {
		o.enqueue(records)
	}
}
