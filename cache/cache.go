// Package cache provides a date-keyed query cache with bounded freshness
// for today's entries, indefinite freshness for past dates, a fallible
// durable backend with an in-memory fallback, and de-duplication of
// concurrent fetches for the same key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultFreshnessWindow is how old a cached entry for *today* may get
// before it is treated as stale. Past days are immutable upstream, so their
// entries never expire.
const DefaultFreshnessWindow = 30 * time.Minute

const dateLayout = "2006-01-02"

// ErrInFlight is returned by FetchOrLoad when another fetch for the same key
// has started and not yet finished. The caller gets no data rather than
// blocking; concurrent same-key callers only occur on rapid re-renders and
// the first fetch will populate the cache for them.
var ErrInFlight = errors.New("cache: fetch already in flight")

// Result is what FetchOrLoad hands back to the caller.
type Result[T any] struct {
	Payload   T
	FromCache bool
}

// Events carries optional callbacks for observability. All failures of the
// durable backend are reported here and never propagated; the cache degrades
// to memory-only behavior instead.
type Events struct {
	// StoreError fires when a durable backend operation fails.
	// op is one of "probe", "get", "set", "delete", "keys", "decode".
	StoreError func(op, key string, err error)
}

func (e Events) storeError(op, key string, err error) {
	if e.StoreError != nil {
		e.StoreError(op, key, err)
	}
}

// Cache is a temporal cache for date-keyed query results. Payloads are
// opaque to the cache beyond being JSON-serializable. All methods are safe
// for concurrent use.
type Cache[T any] struct {
	namespace string
	store     Store
	durable   bool
	mem       *gocache.Cache
	window    time.Duration
	now       func() time.Time
	events    Events

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type memEntry[T any] struct {
	storedAt time.Time
	payload  T
}

// envelope is the durable on-disk representation of an entry.
type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithFreshnessWindow overrides DefaultFreshnessWindow.
func WithFreshnessWindow[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) { c.window = d }
}

// WithClock injects a time source, used by tests to control freshness.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// WithEvents registers observability callbacks.
func WithEvents[T any](ev Events) Option[T] {
	return func(c *Cache[T]) { c.events = ev }
}

// New creates a cache with the given namespace (the key prefix, e.g.
// "alerts") and durable backend. store may be nil for memory-only caching.
// A one-time write+delete probe runs against the backend here; if it fails,
// the cache is memory-only for its entire lifetime.
func New[T any](namespace string, store Store, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		namespace: namespace,
		store:     store,
		mem:       gocache.New(gocache.NoExpiration, 0),
		window:    DefaultFreshnessWindow,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	if store != nil {
		probeKey := namespace + "__probe"
		if err := store.Set(probeKey, []byte("1")); err != nil {
			c.events.storeError("probe", probeKey, err)
		} else if err := store.Delete(probeKey); err != nil {
			c.events.storeError("probe", probeKey, err)
		} else {
			c.durable = true
		}
	}
	return c
}

// DurableAvailable reports whether the init-time backend probe succeeded.
func (c *Cache[T]) DurableAvailable() bool { return c.durable }

func (c *Cache[T]) keyFor(date string) string {
	return c.namespace + "_" + date
}

// stale reports whether an entry for date written at storedAt may no longer
// reflect upstream. Only today's data is still accumulating; any past date
// is closed and stays fresh forever.
func (c *Cache[T]) stale(date string, storedAt time.Time) bool {
	if date != c.now().Format(dateLayout) {
		return false
	}
	return c.now().Sub(storedAt) > c.window
}

// Get returns the cached payload for date, if present and fresh. A stale
// entry for today is evicted and reported as a miss.
func (c *Cache[T]) Get(date string) (T, bool) {
	var zero T
	key := c.keyFor(date)

	if v, ok := c.mem.Get(key); ok {
		e := v.(memEntry[T])
		if c.stale(date, e.storedAt) {
			c.evict(key)
			return zero, false
		}
		return e.payload, true
	}

	if !c.durable {
		return zero, false
	}

	raw, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.events.storeError("get", key, err)
		}
		return zero, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// corrupted entry: same as a miss, drop it so the next fetch heals
		c.events.storeError("decode", key, err)
		c.evict(key)
		return zero, false
	}
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.events.storeError("decode", key, err)
		c.evict(key)
		return zero, false
	}

	if c.stale(date, env.StoredAt) {
		c.evict(key)
		return zero, false
	}

	c.mem.Set(key, memEntry[T]{storedAt: env.StoredAt, payload: payload}, gocache.NoExpiration)
	return payload, true
}

// Put stores payload under date with storedAt = now, unconditionally
// overwriting any existing entry. The in-memory copy always succeeds;
// durable writes are best-effort.
func (c *Cache[T]) Put(date string, payload T) {
	key := c.keyFor(date)
	storedAt := c.now()

	c.mem.Set(key, memEntry[T]{storedAt: storedAt, payload: payload}, gocache.NoExpiration)

	if !c.durable {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.events.storeError("set", key, err)
		return
	}
	raw, err := json.Marshal(envelope{StoredAt: storedAt, Payload: body})
	if err != nil {
		c.events.storeError("set", key, err)
		return
	}
	if err := c.store.Set(key, raw); err != nil {
		c.events.storeError("set", key, err)
	}
}

// FetchOrLoad is the composed read path: cache hit returns immediately, a
// miss runs loader and caches its result. At most one loader runs per key
// at any time; a concurrent second call returns ErrInFlight without data.
// A loader failure caches nothing and leaves the key retryable.
func (c *Cache[T]) FetchOrLoad(ctx context.Context, date string, loader func(context.Context) (T, error)) (Result[T], error) {
	key := c.keyFor(date)

	c.mu.Lock()
	if _, busy := c.inFlight[key]; busy {
		c.mu.Unlock()
		return Result[T]{}, ErrInFlight
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	if payload, ok := c.Get(date); ok {
		return Result[T]{Payload: payload, FromCache: true}, nil
	}

	payload, err := loader(ctx)
	if err != nil {
		return Result[T]{}, fmt.Errorf("load %s: %w", key, err)
	}

	c.Put(date, payload)
	return Result[T]{Payload: payload}, nil
}

// Clear removes every entry under the cache's namespace from both the
// in-memory map and the durable backend. Backend failures are reported via
// Events and otherwise ignored.
func (c *Cache[T]) Clear() {
	c.mem.Flush()

	if !c.durable {
		return
	}
	keys, err := c.store.Keys(c.namespace + "_")
	if err != nil {
		c.events.storeError("keys", c.namespace, err)
		return
	}
	for _, key := range keys {
		if err := c.store.Delete(key); err != nil {
			c.events.storeError("delete", key, err)
		}
	}
}

func (c *Cache[T]) evict(key string) {
	c.mem.Delete(key)
	if c.durable {
		if err := c.store.Delete(key); err != nil {
			c.events.storeError("delete", key, err)
		}
	}
}
