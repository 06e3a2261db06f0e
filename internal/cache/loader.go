package cache

import (
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fills a Cache on miss. Concurrent misses on one key share a single load.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader wraps c
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c}
}

// Clear drops every cached value
func (l *Loader) Clear() error {
	return l.cache.Clear()
}

// Load returns the cached value for key, or calls load and caches its result
// for ttl. Errors are not cached.
func Load[T any](l *Loader, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		val, err := load()
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache key %s holds %T", key, v)
	}
	return typed, nil
}
