package infrastructure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySpamCounterSlidingWindow(t *testing.T) {
	c := NewMemorySpamCounter(5, 10*time.Second)
	defer c.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	key := SpamKey("t1", "c1")

	for i := 0; i < 5; i++ {
		ok, err := c.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
		now = now.Add(time.Second)
	}
	ok, err := c.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "sixth hit inside the window is throttled")

	other, _ := c.Allow(ctx, SpamKey("t2", "c1"))
	assert.True(t, other, "keys are independent")

	now = now.Add(11 * time.Second)
	ok, _ = c.Allow(ctx, key)
	assert.True(t, ok, "window slid past earlier hits")
}

func TestMemorySpamCounterReset(t *testing.T) {
	c := NewMemorySpamCounter(1, time.Minute)
	defer c.Close()
	ctx := context.Background()

	ok, _ := c.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = c.Allow(ctx, "k")
	assert.False(t, ok)

	c.Reset("k")
	ok, _ = c.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRedisSpamCounter(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(url)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisSpamCounter(client, 2, time.Second)
	key := "test-" + uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := c.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
