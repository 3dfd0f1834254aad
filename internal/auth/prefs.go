package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// lastProviderKey persists which provider last authenticated. Only the
// id is stored, never a token.
const lastProviderKey = "auth:last_provider"

// PreferenceStore is the durable key/value port the manager uses to
// remember the last successful provider across restarts.
type PreferenceStore interface {
	LastProviderID(ctx context.Context) (string, error)
	SetLastProviderID(ctx context.Context, id string) error
	ClearLastProviderID(ctx context.Context) error
}

// RedisPreferenceStore stores the last provider id in Redis.
type RedisPreferenceStore struct {
	client *redis.Client
}

func NewRedisPreferenceStore(client *redis.Client) *RedisPreferenceStore {
	return &RedisPreferenceStore{client: client}
}

func (r *RedisPreferenceStore) LastProviderID(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, lastProviderKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting last provider id: %w", err)
	}
	return val, nil
}

func (r *RedisPreferenceStore) SetLastProviderID(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, lastProviderKey, id, 0).Err(); err != nil {
		return fmt.Errorf("setting last provider id: %w", err)
	}
	return nil
}

func (r *RedisPreferenceStore) ClearLastProviderID(ctx context.Context) error {
	if err := r.client.Del(ctx, lastProviderKey).Err(); err != nil {
		return fmt.Errorf("clearing last provider id: %w", err)
	}
	return nil
}

// MemoryPreferenceStore keeps the preference in memory, for tests and
// single-process runs without Redis.
type MemoryPreferenceStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{}
}

func (m *MemoryPreferenceStore) LastProviderID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryPreferenceStore) SetLastProviderID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *MemoryPreferenceStore) ClearLastProviderID(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}

var (
	_ PreferenceStore = (*RedisPreferenceStore)(nil)
	_ PreferenceStore = (*MemoryPreferenceStore)(nil)
)
