package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterRefills(t *testing.T) {
	l := New()
	now := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("conn-1", 2, 1))
	assert.True(t, l.Allow("conn-1", 2, 1))
	assert.False(t, l.Allow("conn-1", 2, 1))
	assert.True(t, l.Allow("conn-2", 2, 1), "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("conn-1", 2, 1))
	assert.False(t, l.Allow("conn-1", 2, 1))

	l.Forget("conn-1")
	assert.True(t, l.Allow("conn-1", 2, 1))
}
