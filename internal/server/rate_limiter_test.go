package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketUnarmedPassesEverything(t *testing.T) {
	tb := newTokenBucket(1, time.Hour)

	// Before registration arms the bucket, nothing is metered.
	for i := 0; i < 100; i++ {
		assert.True(t, tb.allow())
	}

	tb.arm()
	assert.True(t, tb.allow())
	assert.False(t, tb.allow(), "metering starts at arm time")
}

func TestTokenBucketAllowsBurstThenDenies(t *testing.T) {
	tb := newTokenBucket(3, time.Hour)
	tb.arm()

	for i := 0; i < 3; i++ {
		assert.True(t, tb.allow(), "burst request %d", i)
	}
	assert.False(t, tb.allow(), "bucket must be empty after the burst")
}

func TestTokenBucketRefills(t *testing.T) {
	tb := newTokenBucket(5, 50*time.Millisecond)
	tb.arm()

	for i := 0; i < 5; i++ {
		assert.True(t, tb.allow())
	}
	assert.False(t, tb.allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, tb.allow(), "a full interval restores the bucket")
}

func TestTokenBucketCapsAtCapacity(t *testing.T) {
	tb := newTokenBucket(2, 10*time.Millisecond)
	tb.arm()

	// However long the bucket idles, it never stores more than capacity.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, tb.allow())
	assert.True(t, tb.allow())
	assert.False(t, tb.allow())
}

func TestTokenBucketSanitizesArguments(t *testing.T) {
	tb := newTokenBucket(0, -time.Second)
	tb.arm()

	assert.True(t, tb.allow())
	assert.False(t, tb.allow())
}
