package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"leadcaller/models"
)

// ErrSessionNotFound is returned by Get for unknown call ids.
var ErrSessionNotFound = eris.New("correlation: session not found")

// SessionStore holds correlation sessions keyed by call id.
type SessionStore interface {
	Get(ctx context.Context, callID string) (*models.CallSession, error)
	// Upsert applies fn to the stored session, or to a fresh one with
	// CallID set when none exists, and stores the result atomically.
	Upsert(ctx context.Context, callID string, fn func(s *models.CallSession) error) (*models.CallSession, error)
}

func newSession(callID string) *models.CallSession {
	return &models.CallSession{CallID: callID, CreatedAt: time.Now()}
}

// MemoryStore is the single-process SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.CallSession)}
}

func (m *MemoryStore) Get(_ context.Context, callID string) (*models.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Upsert(_ context.Context, callID string, fn func(s *models.CallSession) error) (*models.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := newSession(callID)
	if s, ok := m.sessions[callID]; ok {
		cp := *s
		working = &cp
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	m.sessions[callID] = working
	cp := *working
	return &cp, nil
}

const (
	sessionKeyPrefix = "leadcaller:session:"
	sessionTTL       = 24 * time.Hour
	maxTxRetries     = 10
)

// RedisStore keeps sessions as JSON values so several webhook receivers can
// share them. Upserts use optimistic WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: sessionTTL}
}

func sessionKey(callID string) string { return sessionKeyPrefix + callID }

func (r *RedisStore) Get(ctx context.Context, callID string) (*models.CallSession, error) {
	return r.read(ctx, r.client, callID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) read(ctx context.Context, g getter, callID string) (*models.CallSession, error) {
	payload, err := g.Get(ctx, sessionKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis: load session")
	}
	var s models.CallSession
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, eris.Wrap(err, "redis: decode session")
	}
	return &s, nil
}

func (r *RedisStore) Upsert(ctx context.Context, callID string, fn func(s *models.CallSession) error) (*models.CallSession, error) {
	key := sessionKey(callID)
	var result *models.CallSession

	txf := func(tx *redis.Tx) error {
		s, err := r.read(ctx, tx, callID)
		if errors.Is(err, ErrSessionNotFound) {
			s = newSession(callID)
		} else if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return eris.Wrap(err, "redis: encode session")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = s
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, eris.Errorf("redis: session %s upsert contended %d times", callID, maxTxRetries)
}
