package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// Registry selects classifiers by name. The first one registered becomes
// the default.
type Registry struct {
	mu          sync.RWMutex
	classifiers map[string]Classifier
	order       []string
	def         string
}

func NewRegistry() *Registry {
	return &Registry{classifiers: make(map[string]Classifier)}
}

// Register adds c under name. Names are lower-cased.
func (r *Registry) Register(name string, c Classifier) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || c == nil {
		return fmt.Errorf("register classifier: empty name or nil classifier")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classifiers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClassifier, name)
	}
	r.classifiers[name] = c
	r.order = append(r.order, name)
	if r.def == "" {
		r.def = name
	}
	return nil
}

func (r *Registry) SetDefault(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classifiers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClassifier, name)
	}
	r.def = name
	return nil
}

func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get returns the named classifier; an empty name selects the default.
func (r *Registry) Get(name string) (Classifier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	c, ok := r.classifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownClassifier, name, r.order)
	}
	return c, nil
}

// Names lists classifiers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Classify runs the named (or default) classifier and stamps the name on the
// result.
func (r *Registry) Classify(ctx context.Context, in Input, name string) (*model.Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	res, err := c.Classify(ctx, in)
	if err != nil {
		return nil, err
	}
	res.Classifier = c.Name()
	return res, nil
}

// DefaultOptions wires the stock classifiers.
type DefaultOptions struct {
	Logger logging.Logger
	// Loader enables the "model" classifier.
	Loader  Loader
	Fetcher webclient.WebClient
	// Store, when set, caches URL results of every classifier but the mocks.
	Store    ResultStore
	CacheTTL time.Duration
	Default  string
}

// NewDefaultRegistry registers heuristic, mock-block, mock-allow and, when a
// loader is configured, model.
func NewDefaultRegistry(opts DefaultOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	wrap := func(c Classifier) Classifier {
		if opts.Store == nil {
			return c
		}
		return NewCached(c, opts.Store, opts.CacheTTL, logger)
	}

	r := NewRegistry()
	stock := []Classifier{wrap(NewHeuristic()), NewMock(true), NewMock(false)}
	if opts.Loader != nil {
		stock = append(stock, wrap(NewModelClassifier(ModelOptions{
			Loader:        opts.Loader,
			Fetcher:       opts.Fetcher,
			Logger:        logger,
			FetchRetries:  3,
			HashCacheSize: 256,
		})))
	}
	for _, c := range stock {
		if err := r.Register(c.Name(), c); err != nil {
			return nil, err
		}
	}
	if opts.Default != "" {
		if err := r.SetDefault(opts.Default); err != nil {
			return nil, err
		}
	}
	return r, nil
}
