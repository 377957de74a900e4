package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/webclient"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const ModelName = "model"

// ModelInput is what a Model predicts on: the decoded image and the bytes it
// was decoded from.
type ModelInput struct {
	Image  image.Image
	Data   []byte
	Format string
}

// Model is the external inference boundary.
type Model interface {
	Predict(ctx context.Context, in ModelInput) ([]Prediction, error)
}

// Loader produces a ready Model. It is called at most once at a time.
type Loader func(ctx context.Context) (Model, error)

// ModelOptions configures a ModelClassifier.
type ModelOptions struct {
	Loader  Loader
	Fetcher webclient.WebClient
	Logger  logging.Logger
	// FetchRetries bounds retries of transient fetch failures.
	FetchRetries uint64
	RetryBase    time.Duration
	// HashCacheSize bounds the perceptual-hash prediction cache; 0 disables it.
	HashCacheSize int
}

// modelState is shared between forks: one load, one cache.
type modelState struct {
	loader Loader
	group  singleflight.Group

	mu    sync.RWMutex
	model Model

	fetch  *fetcher
	hashes *hashCache
	logger logging.Logger
}

// ModelClassifier lazily loads a Model on first use and aggregates its
// category probabilities into a severity. Load failures and undecodable
// inputs fall back to the heuristic; fetch and prediction failures yield a
// safe result.
type ModelClassifier struct {
	*params
	state     *modelState
	heuristic *Heuristic
}

func NewModelClassifier(opts ModelOptions) *ModelClassifier {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	st := &modelState{
		loader: opts.Loader,
		fetch:  &fetcher{client: opts.Fetcher, maxRetries: opts.FetchRetries, base: opts.RetryBase},
		logger: logger.With(logging.Field{Key: "component", Value: "classifier.model"}),
	}
	if opts.HashCacheSize > 0 {
		st.hashes = newHashCache(opts.HashCacheSize)
	}
	p := newParams()
	return &ModelClassifier{params: p, state: st, heuristic: &Heuristic{params: p}}
}

func (c *ModelClassifier) Name() string { return ModelName }

func (c *ModelClassifier) Fork() Classifier {
	p := c.params.clone()
	return &ModelClassifier{params: p, state: c.state, heuristic: &Heuristic{params: p}}
}

// Loaded reports whether a model is cached.
func (c *ModelClassifier) Loaded() bool {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.model != nil
}

// ensureModel returns the cached model or performs a single-flight load.
// A failed load is not cached.
func (c *ModelClassifier) ensureModel(ctx context.Context) (Model, error) {
	st := c.state
	st.mu.RLock()
	m := st.model
	st.mu.RUnlock()
	if m != nil {
		return m, nil
	}
	if st.loader == nil {
		return nil, fmt.Errorf("%w: no model loader configured", ErrClassifierUnavailable)
	}

	v, err, _ := st.group.Do("load", func() (any, error) {
		st.mu.RLock()
		if st.model != nil {
			m := st.model
			st.mu.RUnlock()
			return m, nil
		}
		st.mu.RUnlock()

		st.logger.Info("loading model")
		loaded, err := st.loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, fmt.Errorf("loader returned nil model")
		}
		st.mu.Lock()
		st.model = loaded
		st.mu.Unlock()
		st.logger.Info("model loaded")
		return loaded, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	return v.(Model), nil
}

func (c *ModelClassifier) Classify(ctx context.Context, in Input) (*model.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	st := c.state

	m, err := c.ensureModel(ctx)
	if err != nil {
		st.logger.Warn("model unavailable, using heuristic", logging.Field{Key: "error", Value: err})
		return c.fallback(ctx, in, "model unavailable")
	}

	data := in.Data
	if !in.HasBytes() {
		data, err = st.fetch.fetch(ctx, in.URL)
		if err != nil {
			st.logger.Warn("image fetch failed",
				logging.Field{Key: "url", Value: in.URL},
				logging.Field{Key: "error", Value: err})
			return safeResult(ModelName, err), nil
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		st.logger.Debug("undecodable image, using heuristic",
			logging.Field{Key: "url", Value: in.URL},
			logging.Field{Key: "error", Value: err})
		return c.fallback(ctx, Input{URL: in.URL, Data: data}, "unsupported image")
	}

	preds, ok := st.hashes.lookup(img)
	if !ok {
		preds, err = m.Predict(ctx, ModelInput{Image: img, Data: data, Format: format})
		if err != nil {
			st.logger.Warn("prediction failed",
				logging.Field{Key: "url", Value: in.URL},
				logging.Field{Key: "error", Value: err})
			return safeResult(ModelName, err), nil
		}
		st.hashes.store(img, preds)
	}

	r := &model.Result{
		Confidence: TopConfidence(preds),
		Reasons:    PredictionReasons(preds),
		Classifier: ModelName,
	}
	return c.verdict(r, ScoreToSeverity(WeightedScore(preds))), nil
}

// fallback runs the heuristic and notes why.
func (c *ModelClassifier) fallback(ctx context.Context, in Input, why string) (*model.Result, error) {
	var r *model.Result
	var err error
	if in.URL != "" && !in.HasBytes() {
		r = c.heuristic.ScoreLocator(in.URL)
	} else {
		r, err = c.heuristic.Classify(ctx, in)
		if err != nil {
			return nil, err
		}
	}
	r.Classifier = ModelName
	r.Reasons = append(r.Reasons, why+", used heuristic")
	return r, nil
}
