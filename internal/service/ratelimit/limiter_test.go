package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4", 3, 0), "request %d should pass", i)
	}
	assert.False(t, l.Allow("1.2.3.4", 3, 0))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
}

func TestAllowRefills(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("k", 1, 100)) // 100 tokens/s
	assert.False(t, l.Allow("k", 1, 100))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("k", 1, 100))
}

func TestRefillCapsAtCapacity(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("k", 2, 50))
	time.Sleep(100 * time.Millisecond) // idle long enough to refill 5 tokens

	// only capacity tokens are available regardless of idle time
	assert.True(t, l.Allow("k", 2, 50))
	assert.True(t, l.Allow("k", 2, 50))
	assert.False(t, l.Allow("k", 2, 50))
}

func TestPurgeDropsIdleBuckets(t *testing.T) {
	l := New()

	l.Allow("old", 1, 0)
	time.Sleep(15 * time.Millisecond)
	l.Allow("fresh", 1, 0)

	removed := l.Purge(10 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.Len(t, l.m, 1)

	// a purged key starts over with a full bucket
	assert.True(t, l.Allow("old", 1, 0))
}
