package engine

import (
	"context"
	"sync"
	"time"

	"signaling-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Guard enforces at most one non-terminal session per ordered caller/receiver
// pair. It is advisory: the store does not reject a second insert, the guard
// just stops well-behaved clients from creating one.
type Guard interface {
	Acquire(ctx context.Context, callerID, receiverID string) (bool, error)
	Release(ctx context.Context, callerID, receiverID string) error
}

// RedisGuard backs the pair slot with the shared redis instance so the cap
// holds across all of a user's clients. Slots expire on their own, so a
// crashed client cannot wedge the pair.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func pairKey(callerID, receiverID string) string {
	return "call_pair:" + callerID + ":" + receiverID
}

func (g *RedisGuard) Acquire(ctx context.Context, callerID, receiverID string) (bool, error) {
	return utils.AcquirePairSlot(ctx, g.rdb, pairKey(callerID, receiverID), 1, g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, callerID, receiverID string) error {
	return utils.ReleasePairSlot(ctx, g.rdb, pairKey(callerID, receiverID))
}

// MemoryGuard is a process-local Guard for tests and single-node setups.
type MemoryGuard struct {
	mu    sync.Mutex
	slots map[string]bool
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{slots: make(map[string]bool)}
}

func (g *MemoryGuard) Acquire(ctx context.Context, callerID, receiverID string) (bool, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	key := pairKey(callerID, receiverID)
	if g.slots[key] {
		return false, nil
	}
	g.slots[key] = true
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, callerID, receiverID string) error {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.slots, pairKey(callerID, receiverID))
	return nil
}
