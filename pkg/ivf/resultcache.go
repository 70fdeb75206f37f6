package ivf

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nnvector/ivfcoord/pkg/observability"
)

// cacheKey identifies one (queries, params) Search call.
type cacheKey string

// resultCacheEntry is one LRU node's payload.
type resultCacheEntry struct {
	key       cacheKey
	value     *SearchResult
	expiresAt time.Time
}

// resultCache is a thread-safe LRU+TTL cache of Search results, adapted
// from the teacher's query cache for hybrid search results: same
// container/list + map eviction structure, specialized to SearchResult and
// keyed on a hash of the query batch and params instead of a single vector.
type resultCache struct {
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	entries map[cacheKey]*list.Element
	order   *list.List

	hits   int64
	misses int64
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	return &resultCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[cacheKey]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *resultCache) get(key cacheKey) (*SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*resultCacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

func (c *resultCache) put(key cacheKey, value *SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*resultCacheEntry)
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.order.MoveToFront(elem)
		return
	}

	entry := &resultCacheEntry{key: key, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	elem := c.order.PushFront(entry)
	c.entries[key] = elem

	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

func (c *resultCache) removeLocked(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*resultCacheEntry)
	delete(c.entries, entry.key)
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*list.Element, c.capacity)
	c.order.Init()
	c.hits = 0
	c.misses = 0
}

// resultCacheStats mirrors the teacher's CacheStats shape.
type resultCacheStats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}

func (c *resultCache) stats() resultCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return resultCacheStats{Hits: c.hits, Misses: c.misses, Size: c.order.Len(), HitRate: rate}
}

func generateSearchCacheKey(queries [][]float32, params SearchParams) cacheKey {
	h := sha256.New()
	for _, q := range queries {
		for _, v := range q {
			binary.Write(h, binary.LittleEndian, math.Float32bits(v))
		}
	}
	binary.Write(h, binary.LittleEndian, int32(params.K))
	binary.Write(h, binary.LittleEndian, int32(params.Nprobe))
	binary.Write(h, binary.LittleEndian, params.BatchedScan)
	binary.Write(h, binary.LittleEndian, int32(params.FilteringType))
	binary.Write(h, binary.LittleEndian, int32(params.OverfetchFactor))
	h.Write([]byte(params.FilterColumn))
	h.Write([]byte(params.FilterOp))
	fmt.Fprintf(h, "%v", params.FilterValue)
	return cacheKey(fmt.Sprintf("search:%x", h.Sum(nil)))
}

// CachedCoordinator wraps a Coordinator with a query-result cache. Cache
// hits return a deep copy so callers can never mutate a cached entry. The
// cache has no notion of index mutation: construct a fresh
// CachedCoordinator (or call Invalidate) whenever the underlying partition
// snapshot changes.
type CachedCoordinator struct {
	*Coordinator
	cache   *resultCache
	metrics *observability.Metrics
}

// NewCachedCoordinator wraps coord with an LRU+TTL cache of the given
// capacity and ttl (ttl <= 0 disables expiration). metrics may be nil, in
// which case cache hits/misses are still tracked internally but not
// reported to Prometheus.
func NewCachedCoordinator(coord *Coordinator, capacity int, ttl time.Duration, metrics *observability.Metrics) *CachedCoordinator {
	return &CachedCoordinator{Coordinator: coord, cache: newResultCache(capacity, ttl), metrics: metrics}
}

// Search consults the cache before delegating to the wrapped Coordinator.
func (c *CachedCoordinator) Search(queries [][]float32, params SearchParams) (*SearchResult, error) {
	key := generateSearchCacheKey(queries, params)
	if cached, ok := c.cache.get(key); ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit()
			c.metrics.UpdateCacheSize(c.cache.stats().Size)
		}
		return cloneSearchResult(cached), nil
	}
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
	result, err := c.Coordinator.Search(queries, params)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, result)
	if c.metrics != nil {
		c.metrics.UpdateCacheSize(c.cache.stats().Size)
	}
	return cloneSearchResult(result), nil
}

// Invalidate clears every cached entry; call after the underlying
// partition snapshot changes.
func (c *CachedCoordinator) Invalidate() {
	c.cache.clear()
}

// CacheStats reports hit/miss counters for observability endpoints.
func (c *CachedCoordinator) CacheStats() (hits, misses int64, size int, hitRate float64) {
	s := c.cache.stats()
	return s.Hits, s.Misses, s.Size, s.HitRate
}

func cloneSearchResult(r *SearchResult) *SearchResult {
	out := &SearchResult{
		IDs:           make([][]int64, len(r.IDs)),
		Distances:     make([][]float32, len(r.Distances)),
		Timing:        r.Timing,
		ForcedBatched: r.ForcedBatched,
	}
	for i := range r.IDs {
		out.IDs[i] = append([]int64(nil), r.IDs[i]...)
		out.Distances[i] = append([]float32(nil), r.Distances[i]...)
	}
	return out
}
