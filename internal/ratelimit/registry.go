package ratelimit

import (
	"sort"
	"sync"

	"github.com/astas888/manga-media-server/internal/config"
)

// Registry owns one AdaptiveLimiter per source for the process lifetime.
// Jobs share the limiter of their source and never mutate it directly.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
	cfg      config.RateLimitConfig
}

func NewRegistry(cfg config.RateLimitConfig) *Registry {
	return &Registry{
		limiters: make(map[string]*AdaptiveLimiter),
		cfg:      cfg,
	}
}

// ForSource returns the limiter for the source, creating it on first use.
func (r *Registry) ForSource(sourceName string) *AdaptiveLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[sourceName]
	if !exists {
		limiter = NewAdaptiveLimiter(sourceName, r.cfg)
		r.limiters[sourceName] = limiter
	}
	return limiter
}

// Stats returns every source limiter's status, sorted by source name.
func (r *Registry) Stats() []Status {
	r.mu.Lock()
	limiters := make([]*AdaptiveLimiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	stats := make([]Status, 0, len(limiters))
	for _, l := range limiters {
		stats = append(stats, l.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Source < stats[j].Source
	})
	return stats
}
