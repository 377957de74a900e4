// Package core owns one document's detector, classifier and filter and runs
// the detect -> classify -> filter pipeline over it.
package core

import (
	"context"
	"errors"
	"sync"

	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/detector"
	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/filter"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
)

const DefaultMaxConcurrency = 8

type Options struct {
	// MaxConcurrency bounds classifications in flight per batch.
	MaxConcurrency int
	Logger         logging.Logger
}

type Core struct {
	doc        *dom.Document
	detector   *detector.Detector
	filter     *filter.Filter
	classifier classifier.Classifier
	logger     logging.Logger
	maxConc    int

	// mu guards the lifecycle fields and every filter.Apply, so a result
	// that lost the race with Stop is never applied.
	mu        sync.Mutex
	running   bool
	closed    bool
	immediate bool
	gen       uint64
	runCtx    context.Context
	cancel    context.CancelFunc
}

// New builds a stopped Core. c should be private to this Core when it is
// Tunable, since settings changes are forwarded to it.
func New(doc *dom.Document, c classifier.Classifier, settings model.Settings, opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	det := detector.New(doc, logger)
	if t, ok := c.(classifier.Tunable); ok {
		t.SetThreshold(settings.SeverityThreshold)
		t.SetStrictMode(settings.StrictMode)
	}
	return &Core{
		doc:        doc,
		detector:   det,
		filter:     filter.New(det, settings, logger),
		classifier: c,
		logger:     logger.With(logging.Field{Key: "component", Value: "core"}),
		maxConc:    opts.MaxConcurrency,
	}
}

// Start scans, classifies and filters the existing images, and keeps
// watching for new ones. Calling it while running does nothing.
func (c *Core) Start(ctx context.Context) {
	c.start(ctx, false)
}

// StartWithImmediateHiding hides every image before classifying anything;
// new arrivals are hidden as soon as they are seen. Images judged safe are
// revealed when their classification completes.
func (c *Core) StartWithImmediateHiding(ctx context.Context) {
	c.start(ctx, true)
}

func (c *Core) start(ctx context.Context, immediate bool) {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.immediate = immediate
	c.gen++
	gen := c.gen
	c.runCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	// Watch before scanning so an insertion between the two is seen by one
	// of them; tracking keeps the overlap from being reported twice.
	c.detector.StartWatching(func(descs []model.Descriptor) { c.onNew(gen, descs) })
	existing := c.detector.ScanExisting()
	if immediate {
		c.filter.HideAll()
	}
	runCtx := c.runCtx
	c.mu.Unlock()

	c.logger.Info("started",
		logging.Field{Key: "immediate", Value: immediate},
		logging.Field{Key: "existing", Value: len(existing)},
		logging.Field{Key: "classifier", Value: c.classifier.Name()})

	ctx, done := within(ctx, runCtx)
	defer done()
	c.process(ctx, gen, existing)
}

// Stop ends watching, abandons in-flight classifications and restores the
// document. Calling it while stopped does nothing.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.detector.StopWatching()
	c.cancel()
	c.cancel = nil
	c.filter.ClearAll()
	c.detector.ClearTracking()
	c.logger.Info("stopped")
}

// Close stops the Core for good; later starts do nothing.
func (c *Core) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Stop()
}

// Refresh re-decides every image currently in the document under the
// current settings, leaving the watch in place. It returns how many images
// were processed; 0 when stopped.
func (c *Core) Refresh(ctx context.Context) int {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return 0
	}
	gen := c.gen
	runCtx := c.runCtx
	c.detector.ClearTracking()
	descs := c.detector.ScanExisting()
	descs = append(descs, c.detector.Adopt(held(c.filter.Decided(), descs))...)
	c.mu.Unlock()

	ctx, done := within(ctx, runCtx)
	defer done()
	c.process(ctx, gen, descs)
	return len(descs)
}

// UpdateSettings patches the filter settings and forwards threshold and
// strict-mode changes to the classifier.
func (c *Core) UpdateSettings(p model.SettingsPatch) model.Settings {
	s := c.filter.UpdateSettings(p)
	if t, ok := c.classifier.(classifier.Tunable); ok {
		if p.SeverityThreshold != nil {
			t.SetThreshold(s.SeverityThreshold)
		}
		if p.StrictMode != nil {
			t.SetStrictMode(s.StrictMode)
		}
	}
	return s
}

func (c *Core) Settings() model.Settings {
	return c.filter.Settings()
}

func (c *Core) Stats() model.Stats {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	return model.Stats{
		DetectorStats: c.detector.Stats(),
		FilterStats:   c.filter.Stats(),
		IsRunning:     running,
	}
}

func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Core) Document() *dom.Document { return c.doc }

func (c *Core) ClassifierName() string { return c.classifier.Name() }

// onNew handles a watch batch. It runs on the document's notification
// goroutine, so classification is handed off.
func (c *Core) onNew(gen uint64, descs []model.Descriptor) {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.immediate {
		for _, d := range descs {
			c.filter.Hide(d)
		}
	}
	ctx := c.runCtx
	c.mu.Unlock()

	go c.process(ctx, gen, descs)
}

// process classifies a batch concurrently, bounded by maxConc. One image's
// failure never affects its siblings.
func (c *Core) process(ctx context.Context, gen uint64, descs []model.Descriptor) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConc)

	for _, d := range descs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(d model.Descriptor) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			c.handle(ctx, gen, d)
		}(d)
	}
	wg.Wait()
}

func (c *Core) handle(ctx context.Context, gen uint64, d model.Descriptor) {
	res, err := c.classifier.Classify(ctx, classifier.URLInput(d.Source))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		// Unclassifiable images still honour the allow and block lists.
		c.logger.Warn("classification failed",
			logging.Field{Key: "src", Value: d.Source},
			logging.Field{Key: "error", Value: err})
		res = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.gen != gen {
		c.logger.Debug("dropping late result", logging.Field{Key: "src", Value: d.Source})
		return
	}
	c.filter.Apply(d, c.filter.Decide(d, res))
}

// within returns a context ended by either ctx or run.
func within(ctx, run context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(run, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// held returns the decided descriptors whose channel the scan no longer
// sees, typically because the filter hid it.
func held(decided, scanned []model.Descriptor) []model.Descriptor {
	type key struct {
		element string
		kind    model.Kind
	}
	seen := make(map[key]struct{}, len(scanned))
	for _, d := range scanned {
		seen[key{d.ElementID(), d.Kind}] = struct{}{}
	}
	var out []model.Descriptor
	for _, d := range decided {
		if _, ok := seen[key{d.ElementID(), d.Kind}]; ok || !d.Element.Attached() {
			continue
		}
		out = append(out, d)
	}
	return out
}
