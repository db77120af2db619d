package kb

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLookupCacheSize bounds each lookup cache when no size is configured.
const DefaultLookupCacheSize = 4096

// memo is a read-through cache over a pure lookup. Misses are cached too, so
// the cache is bounded: the least recently used key is evicted once size
// entries are held. It is only valid while the backing index is immutable;
// Catalog never changes its indexes after NewCatalog returns.
type memo[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	load  func(K) V
}

func newMemo[K comparable, V any](size int, load func(K) V) *memo[K, V] {
	if size <= 0 {
		size = DefaultLookupCacheSize
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[K, V](size)
	return &memo[K, V]{
		cache: cache,
		load:  load,
	}
}

func (m *memo[K, V]) get(key K) V {
	if v, ok := m.cache.Get(key); ok {
		return v
	}
	v := m.load(key)
	m.cache.Add(key, v)
	return v
}

func (m *memo[K, V]) len() int {
	return m.cache.Len()
}
