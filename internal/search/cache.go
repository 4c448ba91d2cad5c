package search

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Corpus is a monotonic version counter for a tenant corpus. Ingestion
// bumps it after every successful write, which retires all cached
// search results computed against the previous corpus.
type Corpus struct {
	version atomic.Uint64
}

// Bump advances the corpus version.
func (c *Corpus) Bump() { c.version.Add(1) }

// Version returns the current corpus version.
func (c *Corpus) Version() uint64 { return c.version.Load() }

// cacheEntry is one cached result list with its insertion time for the
// TTL backstop.
type cacheEntry struct {
	key        string
	results    []Result
	insertedAt time.Time
	element    *list.Element
}

// Cache wraps a Searcher with a get-or-compute result cache. Entries
// are keyed by (query fingerprint, corpus version); concurrent
// identical queries collapse into a single underlying computation via
// singleflight, with the second caller awaiting the first's result.
type Cache struct {
	inner   *Searcher
	corpus  *Corpus
	ttl     time.Duration
	maxSize int

	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List
}

// NewCache creates a caching layer over searcher. ttl is a backstop
// only; version tagging is the primary invalidation mechanism.
func NewCache(inner *Searcher, corpus *Corpus, maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		inner:   inner,
		corpus:  corpus,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
	}
}

// Search serves the query from cache when possible, computing it at
// most once per (query, corpus version) across concurrent callers.
func (c *Cache) Search(ctx context.Context, q Query) ([]Result, error) {
	key := fmt.Sprintf("%d|%s|%d|%v|%t", c.corpus.Version(), q.Fingerprint(),
		q.MaxResults(), q.MinSimilarity(), q.IncludeContent())

	if results, ok := c.get(key); ok {
		return results, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Double-check under the flight: a previous caller may have
		// populated the entry between our miss and the Do.
		if results, ok := c.get(key); ok {
			return results, nil
		}
		results, err := c.inner.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		c.put(key, results)
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

func (c *Cache) get(key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.insertedAt) > c.ttl {
		c.lru.Remove(entry.element)
		delete(c.entries, key)
		return nil, false
	}
	c.lru.MoveToFront(entry.element)
	return entry.results, true
}

func (c *Cache) put(key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.results = results
		entry.insertedAt = time.Now()
		c.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{key: key, results: results, insertedAt: time.Now()}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry

	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		evicted := c.lru.Remove(oldest).(*cacheEntry)
		delete(c.entries, evicted.key)
	}
}
