package tokenize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrTokenMapNotFound is returned for unknown or expired map ids
var ErrTokenMapNotFound = errors.New("token map not found")

// Store keeps token maps between tokenize and detokenize calls
type Store interface {
	// Put stores m under m.ID for ttl; zero ttl never expires
	Put(ctx context.Context, m *TokenMap, ttl time.Duration) error

	// Get returns the map stored under id
	Get(ctx context.Context, id string) (*TokenMap, error)

	// Delete removes the map stored under id
	Delete(ctx context.Context, id string) error
}

type storeEntry struct {
	m         *TokenMap
	expiresAt time.Time
}

// MemoryStore implements Store using an in-memory map with TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]storeEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]storeEntry),
		now:     time.Now,
	}
}

// Put implements Store
func (s *MemoryStore) Put(_ context.Context, m *TokenMap, ttl time.Duration) error {
	if m == nil {
		return ErrNilTokenMap
	}

	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[m.ID] = storeEntry{m: m, expiresAt: exp}
	s.mu.Unlock()
	return nil
}

// Get implements Store. Expired entries are removed on access.
func (s *MemoryStore) Get(_ context.Context, id string) (*TokenMap, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenMapNotFound, id)
	}

	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTokenMapNotFound, id)
	}

	return entry.m, nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// RedisStore keeps encoded, optionally signed, token maps in Redis
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	signer    Signer
}

// NewRedisStore creates a store writing keys as keyPrefix+id
func NewRedisStore(client redis.UniversalClient, keyPrefix string, signer Signer) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "datadetector:tokenmap:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, signer: signer}
}

// Put implements Store
func (s *RedisStore) Put(ctx context.Context, m *TokenMap, ttl time.Duration) error {
	encoded, err := Encode(m, s.signer)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+m.ID, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("storing token map %s: %w", m.ID, err)
	}
	return nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, id string) (*TokenMap, error) {
	encoded, err := s.client.Get(ctx, s.keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTokenMapNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading token map %s: %w", id, err)
	}
	return Decode(encoded, s.signer)
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting token map %s: %w", id, err)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
