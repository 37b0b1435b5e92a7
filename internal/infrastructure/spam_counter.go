package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SpamKey builds the counter key for one customer of one tenant.
func SpamKey(tenantID, contactID string) string {
	return tenantID + ":" + contactID
}

// MemorySpamCounter is a sliding-window counter per key.
type MemorySpamCounter struct {
	mu          sync.Mutex
	hits        map[string][]time.Time
	limit       int
	window      time.Duration
	now         func() time.Time
	cleanupTick time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemorySpamCounter allows up to limit hits per window for each key.
func NewMemorySpamCounter(limit int, window time.Duration) *MemorySpamCounter {
	c := &MemorySpamCounter{
		hits:        make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		now:         time.Now,
		cleanupTick: time.Minute,
		stop:        make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *MemorySpamCounter) Allow(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := prune(c.hits[key], now.Add(-c.window))
	kept = append(kept, now)
	c.hits[key] = kept
	return len(kept) <= c.limit, nil
}

// Reset forgets the window for key.
func (c *MemorySpamCounter) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hits, key)
}

func (c *MemorySpamCounter) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemorySpamCounter) cleanup() {
	ticker := time.NewTicker(c.cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			cutoff := c.now().Add(-c.window)
			for key, hits := range c.hits {
				if kept := prune(hits, cutoff); len(kept) == 0 {
					delete(c.hits, key)
				} else {
					c.hits[key] = kept
				}
			}
			c.mu.Unlock()
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// RedisSpamCounter keeps the window in a sorted set so limits hold across
// replicas.
type RedisSpamCounter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisSpamCounter(client *redis.Client, limit int, window time.Duration) *RedisSpamCounter {
	return &RedisSpamCounter{
		client: client,
		prefix: "chatdesk:spam:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (c *RedisSpamCounter) Allow(ctx context.Context, key string) (bool, error) {
	now := c.now()
	redisKey := c.prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-c.window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, c.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("spam counter: %w", err)
	}
	return card.Val() <= int64(c.limit), nil
}
