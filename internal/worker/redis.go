package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"tunerelay/internal/redis"
)

const (
	ledgerKeyPrefix   = "tunerelay:update:"
	defaultLedgerTTL  = 24 * time.Hour
	defaultLedgerSize = 4096
)

// Ledger remembers which update ids were already accepted, so a redelivered
// update is not relayed twice.
type Ledger interface {
	// MarkSeen records updateID and reports whether it was new.
	MarkSeen(ctx context.Context, updateID int64) (bool, error)
	// Forget drops updateID so a redelivery is accepted again.
	Forget(ctx context.Context, updateID int64) error
}

type redisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger shares seen update ids across replicas through Redis.
func NewRedisLedger(client *redis.Client, ttl time.Duration) Ledger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &redisLedger{client: client, ttl: ttl}
}

func (r *redisLedger) key(updateID int64) string {
	return fmt.Sprintf("%s%d", ledgerKeyPrefix, updateID)
}

func (r *redisLedger) MarkSeen(ctx context.Context, updateID int64) (bool, error) {
	stored, err := r.client.SetNX(ctx, r.key(updateID), time.Now().Unix(), r.ttl)
	if err != nil {
		return false, fmt.Errorf("ledger mark %d: %w", updateID, err)
	}
	return stored, nil
}

func (r *redisLedger) Forget(ctx context.Context, updateID int64) error {
	if err := r.client.Del(ctx, r.key(updateID)); err != nil {
		return fmt.Errorf("ledger forget %d: %w", updateID, err)
	}
	return nil
}

type memoryLedger struct {
	mu    sync.Mutex
	cache *lru.Cache[int64, struct{}]
}

// NewMemoryLedger keeps the most recent update ids in process memory.
func NewMemoryLedger(size int) (Ledger, error) {
	if size <= 0 {
		size = defaultLedgerSize
	}
	cache, err := lru.New[int64, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &memoryLedger{cache: cache}, nil
}

func (m *memoryLedger) MarkSeen(_ context.Context, updateID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found, _ := m.cache.ContainsOrAdd(updateID, struct{}{})
	return !found, nil
}

func (m *memoryLedger) Forget(_ context.Context, updateID int64) error {
	m.mu.Lock()
	m.cache.Remove(updateID)
	m.mu.Unlock()
	return nil
}
