package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ResultStore persists classification results by key.
type ResultStore interface {
	Get(ctx context.Context, key string) (*model.Result, bool, error)
	Set(ctx context.Context, key string, r *model.Result, ttl time.Duration) error
}

// Cached decorates a classifier with a result cache for URL inputs. Keys
// cover the classifier name, the normalised locator and the tunable
// parameters, so a threshold change never serves a stale verdict.
// Concurrent misses on one key share a single classification.
type Cached struct {
	inner  Classifier
	store  ResultStore
	ttl    time.Duration
	logger logging.Logger
	group  *singleflight.Group

	mu        sync.RWMutex
	threshold float64
	strict    bool
}

func NewCached(inner Classifier, store ResultStore, ttl time.Duration, logger logging.Logger) *Cached {
	return &Cached{
		inner:     inner,
		store:     store,
		ttl:       ttl,
		logger:    logger.With(logging.Field{Key: "component", Value: "classifier.cache"}),
		group:     &singleflight.Group{},
		threshold: model.DefaultSettings().SeverityThreshold,
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

// Unwrap returns the decorated classifier.
func (c *Cached) Unwrap() Classifier { return c.inner }

func (c *Cached) Fork() Classifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Cached{
		inner:     Fork(c.inner),
		store:     c.store,
		ttl:       c.ttl,
		logger:    c.logger,
		group:     c.group,
		threshold: c.threshold,
		strict:    c.strict,
	}
}

func (c *Cached) SetThreshold(t float64) {
	c.mu.Lock()
	c.threshold = model.ClampSeverity(t)
	c.mu.Unlock()
	if tn, ok := c.inner.(Tunable); ok {
		tn.SetThreshold(t)
	}
}

func (c *Cached) SetStrictMode(s bool) {
	c.mu.Lock()
	c.strict = s
	c.mu.Unlock()
	if tn, ok := c.inner.(Tunable); ok {
		tn.SetStrictMode(s)
	}
}

func (c *Cached) key(locator string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("cleanweb:result:%s:%g:%t:%s", c.inner.Name(), c.threshold, c.strict, utils.CacheKey(locator))
}

func (c *Cached) Classify(ctx context.Context, in Input) (*model.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.HasBytes() {
		return c.inner.Classify(ctx, in)
	}

	key := c.key(in.URL)
	if r, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", logging.Field{Key: "error", Value: err})
	} else if ok {
		return r, nil
	}

	// Forks share the group, so the shared call ignores the cancellation of
	// whichever caller started it. Each caller still stops waiting on its
	// own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		r, err := c.inner.Classify(sctx, in)
		if err != nil {
			return nil, err
		}
		if !IsAnalysisError(r) {
			if err := c.store.Set(sctx, key, r, c.ttl); err != nil {
				c.logger.Warn("cache write failed", logging.Field{Key: "error", Value: err})
			}
		}
		return r, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneResult(res.Val.(*model.Result)), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("classify %s: %w", in.URL, ctx.Err())
	}
}

func cloneResult(r *model.Result) *model.Result {
	out := *r
	out.Reasons = append([]string(nil), r.Reasons...)
	return &out
}

// ─── Memory store ─────────────────────────────────────────────────────

// MemoryStore is an in-process ResultStore backed by go-cache. A zero ttl
// never expires.
type MemoryStore struct {
	items *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*model.Result, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneResult(v.(*model.Result)), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, r *model.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.items.Set(key, cloneResult(r), ttl)
	return nil
}

// Len counts stored entries, including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	return m.items.ItemCount()
}

// ─── Redis store ──────────────────────────────────────────────────────

// RedisOptions are the connection settings of a RedisStore.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// RedisStore keeps results as JSON strings in Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping tests connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (*model.Result, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r model.Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &r, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, r *model.Result, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, string(b), ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
