// Package cache holds generated answers keyed by field label and prompt
// context so repeated questions are answered without a provider call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
)

const (
	DefaultSize = 1000
	DefaultTTL  = time.Hour
)

// Entry is one cached answer.
type Entry struct {
	Key        string
	Value      model.AIAnswer
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size          int   `json:"size"`
	Capacity      int   `json:"capacity"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Expirations   int64 `json:"expirations"`
	Invalidations int64 `json:"invalidations"`
}

// Cache is an in-memory LRU of answers with lazy TTL expiry.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, Entry]
	ttl      time.Duration
	capacity int
	nowFunc  func() time.Time

	// generation advances on every InvalidateAll.
	generation uint64

	hits, misses, evictions, expirations, invalidations atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = now }
}

// New creates a cache holding at most size entries for ttl each. Zero
// values select the defaults.
func New(size int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{ttl: ttl, capacity: size, nowFunc: time.Now}
	for _, o := range opts {
		o(c)
	}

	l, err := lru.NewWithEvict[string, Entry](size, func(string, Entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, eris.Wrap(err, "cache: create lru")
	}
	c.lru = l
	return c, nil
}

// Key derives the cache key for a field label under a prompt context.
func Key(label string, pctx model.PromptContext) string {
	return ScopedKey("", label, pctx)
}

// ScopedKey is Key for answers produced by one provider and model. scope
// is typically "provider/model".
func ScopedKey(scope, label string, pctx model.PromptContext) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(model.NormalizeLabel(label)))
	h.Write([]byte{0})
	h.Write([]byte(pctx.Fingerprint(label)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached answer for label under pctx. Expired entries are
// removed and reported as a miss.
func (c *Cache) Get(label string, pctx model.PromptContext) (model.AIAnswer, bool) {
	return c.GetKey(Key(label, pctx))
}

// GetKey is Get for a precomputed key.
func (c *Cache) GetKey(key string) (model.AIAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return model.AIAnswer{}, false
	}
	if !c.nowFunc().Before(e.ExpiresAt) {
		c.lru.Remove(key)
		// Remove fires the eviction callback; expiry is not an eviction.
		c.evictions.Add(-1)
		c.expirations.Add(1)
		c.misses.Add(1)
		return model.AIAnswer{}, false
	}

	c.hits.Add(1)
	return e.Value.WithCacheHit(), true
}

// Set stores answer for label under pctx.
func (c *Cache) Set(label string, pctx model.PromptContext, answer model.AIAnswer) {
	c.SetKey(Key(label, pctx), answer)
}

// SetKey is Set for a precomputed key.
func (c *Cache) SetKey(key string, answer model.AIAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, answer)
}

// Generation returns the current invalidation generation. Pair it with
// SetKeyAt for writes that finish after a slow producer.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetKeyAt stores answer only if no InvalidateAll happened since gen was
// read. It reports whether the entry was stored.
func (c *Cache) SetKeyAt(key string, gen uint64, answer model.AIAnswer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.addLocked(key, answer)
	return true
}

func (c *Cache) addLocked(key string, answer model.AIAnswer) {
	now := c.nowFunc()
	answer.ServedFromCache = false
	c.lru.Add(key, Entry{Key: key, Value: answer, InsertedAt: now, ExpiresAt: now.Add(c.ttl)})
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	c.lru.Purge()
	// Purge fires the eviction callback per entry.
	c.evictions.Add(-int64(n))
	c.generation++
	c.invalidations.Add(1)
	zap.L().Info("cache: invalidated", zap.Int("entries", n))
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:          c.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
