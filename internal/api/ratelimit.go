package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused motor bucket is kept.
const limiterIdle = 10 * time.Minute

// IngestLimiter holds one token bucket per tenant and motor.
type IngestLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	swept   time.Time
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIngestLimiter creates a limiter allowing perSecond readings per motor
// with the given burst. A non-positive rate disables limiting.
func NewIngestLimiter(perSecond float64, burst int) *IngestLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IngestLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether a reading for the motor may be ingested now.
func (l *IngestLimiter) Allow(tenantID, motorID string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	now := l.now()
	key := tenantID + ":" + motorID

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > limiterIdle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RetryAfter returns the whole seconds a client should wait for one token.
func (l *IngestLimiter) RetryAfter() int {
	if l == nil || l.limit <= 0 {
		return 0
	}
	secs := int(time.Duration(float64(time.Second) / float64(l.limit)).Seconds())
	return max(secs, 1)
}

// Size returns the number of tracked buckets.
func (l *IngestLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
