package translate

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"

	"github.com/teranos/anvil/cache"
	"github.com/teranos/anvil/errors"
)

// DefaultMemoryEntries caps the private cache when Options leaves it unset
const DefaultMemoryEntries = 100_000

// CachingOptions configures a CachingTranslator
type CachingOptions struct {
	// MemoryEntries caps the private in-memory cache
	MemoryEntries int
	// Store is an optional shared persistent cache holding successes only
	Store *cache.Store
	// Namespace separates persistent entries produced under different
	// service settings, e.g. normalize=true vs false
	Namespace string
	Logger    *zap.SugaredLogger
}

// CacheStats counts translator lookups
type CacheStats struct {
	Hits         int64 `json:"hits" yaml:"hits"`
	StoreHits    int64 `json:"store_hits" yaml:"store_hits"`
	Misses       int64 `json:"misses" yaml:"misses"`
	ServiceCalls int64 `json:"service_calls" yaml:"service_calls"`
}

// Add sums two stat snapshots
func (s CacheStats) Add(o CacheStats) CacheStats {
	return CacheStats{
		Hits:         s.Hits + o.Hits,
		StoreHits:    s.StoreHits + o.StoreHits,
		Misses:       s.Misses + o.Misses,
		ServiceCalls: s.ServiceCalls + o.ServiceCalls,
	}
}

type memoized struct {
	allele *Allele
	err    *TranslationError
}

// CachingTranslator memoizes a Service by (expression, format).
// It is owned by one worker goroutine and is not safe for concurrent Translate calls;
// the private LRU is deliberately lock-free. Stats may be read from any goroutine.
type CachingTranslator struct {
	service   Service
	memory    *simplelru.LRU
	store     *cache.Store
	namespace string
	logger    *zap.SugaredLogger

	hits, storeHits, misses, calls atomic.Int64
}

// NewCachingTranslator wraps service with a private cache
func NewCachingTranslator(service Service, opts CachingOptions) (*CachingTranslator, error) {
	if opts.MemoryEntries <= 0 {
		opts.MemoryEntries = DefaultMemoryEntries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	lru, err := simplelru.NewLRU(opts.MemoryEntries, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create translation cache")
	}
	return &CachingTranslator{
		service:   service,
		memory:    lru,
		store:     opts.Store,
		namespace: opts.Namespace,
		logger:    opts.Logger,
	}, nil
}

// Translate returns the memoized result for (expression, format), calling the
// service on first sight. Deterministic rejections are memoized as errors;
// service outages and cancellation are not, so a later call can succeed.
func (t *CachingTranslator) Translate(ctx context.Context, expression string, format Format) (*Allele, error) {
	key := CacheKey(expression, format)

	if v, ok := t.memory.Get(key); ok {
		t.hits.Add(1)
		m := v.(memoized)
		if m.err != nil {
			return nil, m.err
		}
		return m.allele, nil
	}
	t.misses.Add(1)

	if allele := t.fromStore(key); allele != nil {
		t.storeHits.Add(1)
		t.memory.Add(key, memoized{allele: allele})
		return allele, nil
	}

	t.calls.Add(1)
	allele, err := t.service.Translate(ctx, expression, format)
	if err != nil {
		var te *TranslationError
		if errors.As(err, &te) {
			t.memory.Add(key, memoized{err: te})
			return nil, te
		}
		return nil, err
	}

	t.memory.Add(key, memoized{allele: allele})
	t.toStore(key, allele)
	return allele, nil
}

func (t *CachingTranslator) storeKey(key string) string {
	if t.namespace == "" {
		return key
	}
	return t.namespace + "|" + key
}

// fromStore treats any store failure as a miss
func (t *CachingTranslator) fromStore(key string) *Allele {
	if t.store == nil {
		return nil
	}
	data, ok, err := t.store.Get(t.storeKey(key))
	if err != nil {
		t.logger.Warnw("Translation cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var allele Allele
	if err := json.Unmarshal(data, &allele); err != nil {
		t.logger.Warnw("Translation cache entry unreadable", "key", key, "error", err)
		return nil
	}
	return &allele
}

func (t *CachingTranslator) toStore(key string, allele *Allele) {
	if t.store == nil || t.store.ReadOnly() {
		return
	}
	data, err := json.Marshal(allele)
	if err != nil {
		t.logger.Warnw("Translation not cacheable", "key", key, "error", err)
		return
	}
	if err := t.store.Set(t.storeKey(key), data); err != nil {
		t.logger.Warnw("Translation cache write failed", "key", key, "error", err)
	}
}

// Stats returns a snapshot of lookup counters
func (t *CachingTranslator) Stats() CacheStats {
	return CacheStats{
		Hits:         t.hits.Load(),
		StoreHits:    t.storeHits.Load(),
		Misses:       t.misses.Load(),
		ServiceCalls: t.calls.Load(),
	}
}

// Len returns the number of privately memoized keys
func (t *CachingTranslator) Len() int {
	return t.memory.Len()
}
