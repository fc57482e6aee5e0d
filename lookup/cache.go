package lookup

import (
	"context"
	"sync"

	"github.com/lightninglabs/neutrino/cache/lru"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of addresses Cached remembers.
const DefaultCacheSize = 1024

// countryEntry implements cache.Value.
type countryEntry struct {
	country string
}

// Size returns 1 so the LRU cache counts entries rather than bytes.
func (e *countryEntry) Size() (uint64, error) {
	return 1, nil
}

// Cached remembers successful answers of another Lookup and collapses
// concurrent lookups of the same address into one call. Failures are not
// cached.
type Cached struct {
	next Lookup

	mu    sync.Mutex
	cache *lru.Cache[string, *countryEntry]

	group singleflight.Group
}

// NewCached wraps next with an LRU of the given size (DefaultCacheSize when
// size is not positive).
func NewCached(next Lookup, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{
		next:  next,
		cache: lru.NewCache[string, *countryEntry](uint64(size)),
	}
}

// Country implements Lookup.
func (c *Cached) Country(ctx context.Context, addr string) (string, error) {
	c.mu.Lock()
	entry, err := c.cache.Get(addr)
	c.mu.Unlock()
	if err == nil {
		return entry.country, nil
	}

	v, err, _ := c.group.Do(addr, func() (interface{}, error) {
		return c.next.Country(ctx, addr)
	})
	if err != nil {
		return "", err
	}
	country := v.(string)

	c.mu.Lock()
	_, _ = c.cache.Put(addr, &countryEntry{country: country})
	c.mu.Unlock()

	return country, nil
}

// Len returns the number of cached answers.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}
