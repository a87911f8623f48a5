package classify

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ppiankov/navguard/internal/model"
)

// DefaultCacheSize bounds the verdict cache; browsing sessions rarely touch
// more distinct URLs than this inside one TTL window.
const DefaultCacheSize = 512

// VerdictCache memoizes classifier responses per URL and phase so the same
// destination opened in several tabs costs one network round-trip.
type VerdictCache struct {
	lru *expirable.LRU[string, *model.Verdict]
}

// NewVerdictCache creates a TTL-bounded LRU cache. size <= 0 uses
// DefaultCacheSize; ttl <= 0 disables expiry.
func NewVerdictCache(size int, ttl time.Duration) *VerdictCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &VerdictCache{
		lru: expirable.NewLRU[string, *model.Verdict](size, nil, ttl),
	}
}

// Get returns a cached verdict for the URL at the given phase.
func (c *VerdictCache) Get(phase model.Phase, url string) (*model.Verdict, bool) {
	return c.lru.Get(key(phase, url))
}

// Put stores a verdict for the URL at the given phase.
func (c *VerdictCache) Put(phase model.Phase, url string, v *model.Verdict) {
	c.lru.Add(key(phase, url), v)
}

// Len returns the number of live entries.
func (c *VerdictCache) Len() int {
	return c.lru.Len()
}

func key(phase model.Phase, url string) string {
	return string(phase) + "\x00" + url
}
