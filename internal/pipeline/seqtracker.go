package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// seqKeyPrefix namespaces sequence-tracker keys in Redis.
const seqKeyPrefix = "feedseq:"

// RedisClient is the narrow slice of redis.Client the sequence tracker
// needs; *redis.Client and redismock both satisfy it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SequenceTracker decides whether a feed message has been seen before.
// Redundant mirror connections deliver the same sequence numbers; the
// tracker lets the pipeline forward each one once.
type SequenceTracker interface {
	// Observe records seq for the named feed and reports whether it is
	// new (greater than every sequence observed so far).
	Observe(ctx context.Context, feedName string, seq uint64) (bool, error)
}

// RedisSequenceTracker keeps the highest forwarded sequence number per
// feed in Redis so dedup survives process restarts.
type RedisSequenceTracker struct {
	client RedisClient
}

// NewRedisSequenceTracker creates a tracker backed by the given client.
func NewRedisSequenceTracker(client RedisClient) *RedisSequenceTracker {
	return &RedisSequenceTracker{client: client}
}

// Observe implements SequenceTracker. A missing key means the feed has
// never been seen and any sequence number is fresh.
func (t *RedisSequenceTracker) Observe(ctx context.Context, feedName string, seq uint64) (bool, error) {
	key := seqKeyPrefix + feedName

	stored, err := t.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("sequence tracker get %s: %w", key, err)
	}
	if err == nil {
		last, parseErr := strconv.ParseUint(stored, 10, 64)
		if parseErr == nil && seq <= last {
			return false, nil
		}
	}

	if err := t.client.Set(ctx, key, strconv.FormatUint(seq, 10), 0).Err(); err != nil {
		return false, fmt.Errorf("sequence tracker set %s: %w", key, err)
	}
	return true, nil
}

// MemorySequenceTracker is the in-process fallback used when no Redis is
// configured. State is lost on restart.
type MemorySequenceTracker struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NewMemorySequenceTracker creates an empty in-memory tracker.
func NewMemorySequenceTracker() *MemorySequenceTracker {
	return &MemorySequenceTracker{last: make(map[string]uint64)}
}

// Observe implements SequenceTracker.
func (t *MemorySequenceTracker) Observe(_ context.Context, feedName string, seq uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[feedName]; ok && seq <= last {
		return false, nil
	}
	t.last[feedName] = seq
	return true, nil
}
