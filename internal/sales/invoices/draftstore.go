package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DraftStore keeps drafts between requests.
type DraftStore interface {
	Get(ctx context.Context, id string) (*Draft, error)
	Put(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, id string) error
}

// MemoryDraftStore keeps drafts in process memory.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
}

// NewMemoryDraftStore creates an empty store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[string]*Draft)}
}

func (s *MemoryDraftStore) Get(ctx context.Context, id string) (*Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return d.Clone(), nil
}

func (s *MemoryDraftStore) Put(ctx context.Context, d *Draft) error {
	s.mu.Lock()
	s.drafts[d.ID] = d.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryDraftStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	return nil
}

// RedisDraftStore keeps drafts as JSON with a sliding TTL.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisDraftStore creates a Redis backed store.
func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDraftStore{client: client, ttl: ttl, prefix: "sales:draft:"}
}

func (s *RedisDraftStore) Get(ctx context.Context, id string) (*Draft, error) {
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &d, nil
}

func (s *RedisDraftStore) Put(ctx context.Context, d *Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", d.ID, err)
	}
	if err := s.client.Set(ctx, s.prefix+d.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store draft %s: %w", d.ID, err)
	}
	return nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}
