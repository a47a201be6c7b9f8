// Package memo provides a bounded in-process memoization cache for the read
// paths. Keys fold in the current calendar day, so a date change transparently
// invalidates every prior entry without explicit eviction logic; capacity
// pressure recycles stale slots through plain LRU eviction.
package memo

import (
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var errInvalidCapacity = errors.New("memo: capacity must be positive")

const dayBucketLayout = "2006-01-02"

// Cache memoizes computed values under day-bucketed keys. One instance serves
// one operation; capacity bounds the number of live slots. Values returned on
// a hit are shared references and must not be mutated by callers.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
	clock   func() time.Time
}

// New constructs a cache with the given capacity. A nil clock defaults to
// time.Now.
func New[V any](capacity int, clock func() time.Time) (*Cache[V], error) {
	if capacity <= 0 {
		return nil, errInvalidCapacity
	}
	entries, err := lru.New[string, V](capacity)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache[V]{entries: entries, clock: clock}, nil
}

// Key builds the cache key for an operation and its normalized parameters.
// Parameters are trimmed and lower-cased so equivalent requests share a slot;
// the trailing day bucket retires every key at the next calendar date.
func (c *Cache[V]) Key(operation string, params ...string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, operation)
	for _, param := range params {
		parts = append(parts, strings.ToLower(strings.TrimSpace(param)))
	}
	parts = append(parts, c.clock().UTC().Format(dayBucketLayout))
	return strings.Join(parts, "|")
}

// Get returns the memoized value for the key when present.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.entries.Get(key)
}

// Add stores the value under the key, evicting the least recently used entry
// when the cache is full.
func (c *Cache[V]) Add(key string, value V) {
	c.entries.Add(key, value)
}

// Len reports the number of live slots.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}
