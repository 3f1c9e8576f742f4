package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"signaling-platform/internal/session"

	"github.com/redis/go-redis/v9"
)

// channelName is the single pub/sub channel for session change events.
// All subscribers receive everything; filtering happens client-side.
const channelName = "call_sessions.events"

// RedisChannel implements Channel on redis pub/sub. Redis pub/sub is
// at-most-once: a disconnected subscriber misses events, which is exactly
// the delivery model the engine is built to tolerate.
type RedisChannel struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisChannel(rdb *redis.Client, log *slog.Logger) *RedisChannel {
	if log == nil {
		log = slog.Default()
	}
	return &RedisChannel{rdb: rdb, log: log}
}

func (c *RedisChannel) Publish(ctx context.Context, ev session.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, channelName, payload).Err()
}

func (c *RedisChannel) Subscribe(ctx context.Context, fn Handler) (func(), error) {
	ps := c.rdb.Subscribe(ctx, channelName)
	// Force the SUBSCRIBE round-trip so errors surface here, not in the loop.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	go func() {
		for msg := range ps.Channel() {
			var ev session.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.log.Warn("notify: dropping malformed event", "err", err)
				continue
			}
			fn(ctx, ev)
		}
	}()

	return func() { _ = ps.Close() }, nil
}
