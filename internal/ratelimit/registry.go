package ratelimit

import (
	"sync"
	"time"
)

// Registry holds one Limiter per route. Obtaining a limiter with unchanged
// settings returns the existing one, so client buckets survive route table
// refreshes; changed settings replace the limiter and reset all buckets.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Obtain returns the limiter for routeID, creating or replacing it when
// capacity or refillRate differ from the existing one.
func (r *Registry) Obtain(routeID string, capacity, refillRate int64) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[routeID]; ok && l.capacity == capacity && l.refillRate == refillRate {
		return l
	}
	l := NewLimiter(capacity, refillRate)
	r.limiters[routeID] = l
	return l
}

// Retain drops limiters for routes not present in keep.
func (r *Registry) Retain(keep map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.limiters {
		if !keep[id] {
			delete(r.limiters, id)
		}
	}
}

// Sweep evicts idle client buckets from every limiter and returns the
// total number removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	removed := 0
	for _, l := range limiters {
		removed += l.Sweep(maxIdle)
	}
	return removed
}
