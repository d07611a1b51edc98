// Package ratelimit throttles API callers with one token bucket per caller
// and endpoint class.
package ratelimit

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mintledger/internal/ratelimit/models"
)

const (
	defaultIdleTTL = 10 * time.Minute
	evictEvery     = 512
)

// Limiter keeps a bucket per key and periodically evicts idle entries.
type Limiter struct {
	limits  map[models.EndpointClass]models.Limit
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*entry
	hits  uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter. Classes missing from limits fall back to DefaultLimits;
// a class with a non-positive rate is unlimited.
func New(limits map[models.EndpointClass]models.Limit, idleTTL time.Duration) *Limiter {
	merged := models.DefaultLimits()
	for class, l := range limits {
		merged[class] = l
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &Limiter{
		limits:  merged,
		idleTTL: idleTTL,
		byKey:   make(map[string]*entry),
	}
}

// Check consumes one token for key in class at now.
func (l *Limiter) Check(key string, class models.EndpointClass, now time.Time) models.RateLimitResult {
	limit, ok := l.limits[class]
	key = strings.TrimSpace(key)
	if !ok || limit.RPS <= 0 || limit.Burst <= 0 || key == "" {
		return models.RateLimitResult{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := string(class) + ":" + key
	e, ok := l.byKey[bucket]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(limit.RPS), limit.Burst)}
		l.byKey[bucket] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)

	l.hits++
	if l.hits%evictEvery == 0 {
		l.evict(now)
	}

	result := models.RateLimitResult{
		Allowed:   allowed,
		Limit:     limit.Burst,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(secondsToFill(float64(limit.Burst)-tokens, limit.RPS)),
	}
	if !allowed {
		result.RetryAfter = max(int(math.Ceil((1-tokens)/limit.RPS)), 1)
	}
	return result
}

// Len reports how many buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.byKey {
		if v.lastSeen.Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}

func secondsToFill(missing, rps float64) time.Duration {
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / rps * float64(time.Second))
}
