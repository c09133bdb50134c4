// Package sequence issues invoice and journal entry numbers per branch and year.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Domain separates independent counters.
type Domain string

const (
	DomainInvoice Domain = "invoice"
	DomainEntry   Domain = "entry"
)

// Key identifies one counter.
type Key struct {
	Domain   Domain
	BranchID string
	Year     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Domain, k.BranchID, k.Year)
}

// Source hands out the next serial for a key. Next consumes the serial;
// Peek reports the serial Next would return without consuming it.
type Source interface {
	Next(ctx context.Context, key Key) (int64, error)
	Peek(ctx context.Context, key Key) (int64, error)
}

// DocumentCounter counts the documents already numbered under a key.
type DocumentCounter interface {
	CountByBranchAndYear(ctx context.Context, domain Domain, branchID string, year int) (int, error)
}

// CountingSource derives the serial from the number of existing documents.
// Two callers that count before either saves receive the same serial, so
// numbers are best-effort unique only.
type CountingSource struct {
	counter DocumentCounter
}

// NewCountingSource wraps a DocumentCounter.
func NewCountingSource(counter DocumentCounter) *CountingSource {
	return &CountingSource{counter: counter}
}

// Next returns count + 1.
func (s *CountingSource) Next(ctx context.Context, key Key) (int64, error) {
	n, err := s.counter.CountByBranchAndYear(ctx, key.Domain, key.BranchID, key.Year)
	if err != nil {
		return 0, fmt.Errorf("sequence: count %s: %w", key, err)
	}
	return int64(n) + 1, nil
}

// Peek is the same as Next: counting consumes nothing.
func (s *CountingSource) Peek(ctx context.Context, key Key) (int64, error) {
	return s.Next(ctx, key)
}

// Incrementer atomically bumps a named counter, starting from seed when it
// does not exist yet. Counter reads the stored value without changing it.
type Incrementer interface {
	Increment(ctx context.Context, collection, id, field string, seed func(context.Context) (int64, error)) (int64, error)
	Counter(ctx context.Context, collection, id, field string) (int64, bool, error)
}

// CounterCollection holds one counter document per key.
const CounterCollection = "document_counters"

// CounterSource keeps a counter document per key and increments it atomically
// in storage. Existing documents seed the counter on first use.
type CounterSource struct {
	store   Incrementer
	counter DocumentCounter
}

// NewCounterSource builds a CounterSource. counter may be nil when no history
// needs to be honoured.
func NewCounterSource(store Incrementer, counter DocumentCounter) *CounterSource {
	return &CounterSource{store: store, counter: counter}
}

// Next increments the counter document for key.
func (s *CounterSource) Next(ctx context.Context, key Key) (int64, error) {
	n, err := s.store.Increment(ctx, CounterCollection, key.String(), "value", seedFrom(s.counter, key))
	if err != nil {
		return 0, fmt.Errorf("sequence: increment %s: %w", key, err)
	}
	return n, nil
}

// Peek returns the stored counter plus one, or the seed plus one before the
// first increment.
func (s *CounterSource) Peek(ctx context.Context, key Key) (int64, error) {
	n, ok, err := s.store.Counter(ctx, CounterCollection, key.String(), "value")
	if err != nil {
		return 0, fmt.Errorf("sequence: read %s: %w", key, err)
	}
	if !ok {
		if n, err = seedFrom(s.counter, key)(ctx); err != nil {
			return 0, err
		}
	}
	return n + 1, nil
}

// RedisSource keeps counters in Redis with INCR. A missing key is seeded from
// the document count so numbering continues after a cache flush.
type RedisSource struct {
	client  *redis.Client
	counter DocumentCounter
	prefix  string
}

// NewRedisSource builds a RedisSource.
func NewRedisSource(client *redis.Client, counter DocumentCounter) *RedisSource {
	return &RedisSource{client: client, counter: counter, prefix: "seq"}
}

// Next increments the Redis counter for key.
func (s *RedisSource) Next(ctx context.Context, key Key) (int64, error) {
	if s.client == nil {
		return 0, errors.New("sequence: redis client not configured")
	}
	redisKey := s.prefix + ":" + key.String()
	exists, err := s.client.Exists(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence: redis exists %s: %w", redisKey, err)
	}
	if exists == 0 {
		seed, err := seedFrom(s.counter, key)(ctx)
		if err != nil {
			return 0, err
		}
		if err := s.client.SetNX(ctx, redisKey, strconv.FormatInt(seed, 10), 0).Err(); err != nil {
			return 0, fmt.Errorf("sequence: redis seed %s: %w", redisKey, err)
		}
	}
	n, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("sequence: redis incr %s: %w", redisKey, err)
	}
	return n, nil
}

// Peek reads the Redis counter for key and returns it plus one.
func (s *RedisSource) Peek(ctx context.Context, key Key) (int64, error) {
	if s.client == nil {
		return 0, errors.New("sequence: redis client not configured")
	}
	redisKey := s.prefix + ":" + key.String()
	n, err := s.client.Get(ctx, redisKey).Int64()
	if errors.Is(err, redis.Nil) {
		if n, err = seedFrom(s.counter, key)(ctx); err != nil {
			return 0, err
		}
		return n + 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequence: redis get %s: %w", redisKey, err)
	}
	return n + 1, nil
}

func seedFrom(counter DocumentCounter, key Key) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		if counter == nil {
			return 0, nil
		}
		n, err := counter.CountByBranchAndYear(ctx, key.Domain, key.BranchID, key.Year)
		if err != nil {
			return 0, fmt.Errorf("sequence: seed %s: %w", key, err)
		}
		return int64(n), nil
	}
}
