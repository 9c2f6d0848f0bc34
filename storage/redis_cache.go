package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"leadcaller/models"
)

const snapshotKey = "leadcaller:qualified"

// RedisSnapshotStore keeps the qualified-lead snapshot as one JSON value so
// every replica serves the same snapshot.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotStore uses the default key.
func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: snapshotKey}
}

func (r *RedisSnapshotStore) Put(ctx context.Context, snap *models.QualifiedSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "redis: encode snapshot")
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return eris.Wrap(err, "redis: store snapshot")
	}
	return nil
}

func (r *RedisSnapshotStore) Get(ctx context.Context) (*models.QualifiedSnapshot, error) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis: load snapshot")
	}
	var snap models.QualifiedSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, eris.Wrap(err, "redis: decode snapshot")
	}
	return &snap, nil
}

// MemorySnapshotStore is the single-process SnapshotStore.
type MemorySnapshotStore struct {
	mu   sync.RWMutex
	snap *models.QualifiedSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Put(_ context.Context, snap *models.QualifiedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	return nil
}

func (m *MemorySnapshotStore) Get(_ context.Context) (*models.QualifiedSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, ErrNoSnapshot
	}
	return m.snap, nil
}
