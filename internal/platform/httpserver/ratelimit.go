package httpserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit bounds write requests per member with a token bucket.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

var defaultRateLimit = RateLimit{RequestsPerSecond: 5, Burst: 10}

// memberLimiter keeps one token bucket per member. Buckets idle for longer
// than idleTTL are dropped on the next sweep.
type memberLimiter struct {
	mu      sync.Mutex
	cfg     RateLimit
	buckets map[string]*memberBucket
	idleTTL time.Duration
	now     func() time.Time
	swept   time.Time
}

type memberBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newMemberLimiter(cfg RateLimit) *memberLimiter {
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		cfg = defaultRateLimit
	}
	return &memberLimiter{
		cfg:     cfg,
		buckets: make(map[string]*memberBucket),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (l *memberLimiter) Allow(memberID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idleTTL {
		for id, bucket := range l.buckets {
			if now.Sub(bucket.lastSeen) > l.idleTTL {
				delete(l.buckets, id)
			}
		}
		l.swept = now
	}

	bucket, ok := l.buckets[memberID]
	if !ok {
		bucket = &memberBucket{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.buckets[memberID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}
