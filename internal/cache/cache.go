package cache

import (
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key from its parts
func Key(namespace string, parts ...string) string {
	return "rollcall:v1:" + namespace + ":" + strings.Join(parts, ":")
}
