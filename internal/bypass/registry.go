// Package bypass holds time-limited user overrides: a user who explicitly
// proceeds past a warning gets that exact URL exempted from checking until
// the entry expires.
package bypass

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a bypass suppresses checks for its URL.
const DefaultTTL = 60 * time.Second

// Registry maps exact URLs to expiry deadlines. Entries are removed lazily
// on read and by a periodic sweep.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a Registry with the given TTL; ttl <= 0 uses DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add registers (or refreshes) a bypass for the exact URL with a fresh TTL.
func (r *Registry) Add(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[url] = r.now().Add(r.ttl)
}

// Allowed reports whether a live bypass exists for the exact URL. An entry
// created at T suppresses checks strictly before T+TTL; at or after T+TTL it
// no longer does. Expired entries are dropped on read.
func (r *Registry) Allowed(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.entries[url]
	if !ok {
		return false
	}
	if !r.now().Before(exp) {
		delete(r.entries, url)
		return false
	}
	return true
}

// Sweep removes all expired entries and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dropped := 0
	for url, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, url)
			dropped++
		}
	}
	return dropped
}

// Run sweeps the registry periodically until ctx is cancelled. Lazy
// expiry-on-read keeps correctness; the sweep just bounds memory when
// bypassed URLs are never revisited.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of entries, including any not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
