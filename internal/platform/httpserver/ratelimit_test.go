package httpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemberLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newMemberLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1})
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("m1"))
	assert.False(t, limiter.Allow("m1"))
	assert.Len(t, limiter.buckets, 1)

	now = now.Add(11 * time.Minute)
	assert.True(t, limiter.Allow("m2"))
	assert.Len(t, limiter.buckets, 1, "idle m1 bucket should be dropped")
	assert.True(t, limiter.Allow("m1"))
}

func TestMemberLimiterDefaults(t *testing.T) {
	limiter := newMemberLimiter(RateLimit{})
	assert.Equal(t, defaultRateLimit, limiter.cfg)
}
