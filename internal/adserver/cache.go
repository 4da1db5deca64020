package adserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/echoface/adloader/internal/metrics"
)

// LRUCache is a fixed capacity LRU whose entries also expire after ttl.
type LRUCache[V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*cacheItem[V]
	head  *cacheItem[V]
	tail  *cacheItem[V]
}

type cacheItem[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *cacheItem[V]
	next      *cacheItem[V]
}

// NewLRUCache creates a cache. capacity <= 0 means 1000, ttl <= 0 never
// expires.
func NewLRUCache[V any](capacity int, ttl time.Duration) *LRUCache[V] {
	if capacity <= 0 {
		capacity = 1000
	}
	c := &LRUCache[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*cacheItem[V]),
		head:     &cacheItem[V]{},
		tail:     &cacheItem[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(item.expiresAt) {
		c.unlink(item)
		delete(c.items, key)
		return zero, false
	}
	c.moveToHead(item)
	return item.value, true
}

func (c *LRUCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if item, ok := c.items[key]; ok {
		item.value = value
		item.expiresAt = expiresAt
		c.moveToHead(item)
		return
	}

	item := &cacheItem[V]{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = item
	c.addToHead(item)
	if len(c.items) > c.capacity {
		c.removeTail()
	}
}

func (c *LRUCache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		c.unlink(item)
		delete(c.items, key)
	}
}

func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[V]) addToHead(item *cacheItem[V]) {
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
}

func (c *LRUCache[V]) moveToHead(item *cacheItem[V]) {
	c.unlink(item)
	c.addToHead(item)
}

func (c *LRUCache[V]) unlink(item *cacheItem[V]) {
	item.prev.next = item.next
	item.next.prev = item.prev
}

func (c *LRUCache[V]) removeTail() {
	if c.tail.prev == c.head {
		return
	}
	last := c.tail.prev
	c.unlink(last)
	delete(c.items, last.key)
}

// CachedStore fronts a slow Store. Unknown ad units are cached too, so a
// missing object is not fetched again until its entry expires.
type CachedStore struct {
	backend Store
	cache   *LRUCache[*Waterfall]
	metrics *metrics.ServerMetrics
}

func NewCachedStore(backend Store, capacity int, ttl time.Duration, m *metrics.ServerMetrics) *CachedStore {
	return &CachedStore{
		backend: backend,
		cache:   NewLRUCache[*Waterfall](capacity, ttl),
		metrics: m,
	}
}

func (s *CachedStore) Waterfall(ctx context.Context, adUnitID string) (*Waterfall, error) {
	if wf, ok := s.cache.Get(adUnitID); ok {
		s.metrics.RecordCache(true)
		if wf == nil {
			return nil, ErrNotFound
		}
		return wf, nil
	}
	s.metrics.RecordCache(false)

	wf, err := s.backend.Waterfall(ctx, adUnitID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.cache.Set(adUnitID, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	s.cache.Set(adUnitID, wf)
	return wf, nil
}

// Invalidate drops the cached waterfall of adUnitID.
func (s *CachedStore) Invalidate(adUnitID string) {
	s.cache.Remove(adUnitID)
}
