package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// bucket tracks remaining tokens for a single client key. Refill happens
// lazily on access in whole-second steps.
type bucket struct {
	tokens     int64
	lastRefill int64 // epoch seconds of the last refill
	lastSeen   int64 // epoch seconds of the last Allow call, for eviction
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is a token-bucket rate limiter keyed by client identifier.
// Each key gets an independent bucket of the same capacity and refill rate.
type Limiter struct {
	capacity   int64
	refillRate int64 // tokens added per elapsed second
	shards     [shardCount]*shard

	now func() time.Time // injectable for tests
}

// NewLimiter creates a limiter where each key starts with capacity tokens
// and gains refillRate tokens per second, capped at capacity.
func NewLimiter(capacity, refillRate int64) *Limiter {
	l := &Limiter{
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

// Capacity returns the configured burst capacity.
func (l *Limiter) Capacity() int64 { return l.capacity }

// RefillRate returns the configured tokens-per-second refill rate.
func (l *Limiter) RefillRate() int64 { return l.refillRate }

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Allow reports whether the request identified by key may proceed,
// consuming one token if so. A new key starts with a full bucket.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.AllowDetail(key)
	return ok
}

// AllowDetail behaves like Allow and also returns the tokens remaining
// after the decision.
func (l *Limiter) AllowDetail(key string) (bool, int64) {
	now := l.now().Unix()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		s.buckets[key] = b
	}

	if elapsed := now - b.lastRefill; elapsed > 0 {
		b.tokens += elapsed * l.refillRate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastRefill = now
	}
	b.lastSeen = now

	if b.tokens > 0 {
		b.tokens--
		return true, b.tokens
	}
	return false, 0
}

// Sweep removes buckets idle for longer than maxIdle. Callers should pass
// a maxIdle of at least capacity/refillRate seconds so evicted buckets
// have fully refilled.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle).Unix()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastSeen < cutoff {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
