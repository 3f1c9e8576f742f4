package notify

import (
	"context"
	"sync"

	"signaling-platform/internal/session"
)

// subscriberBuffer bounds the per-subscriber queue. A full buffer drops the
// event, mirroring the best-effort contract of the real transport.
const subscriberBuffer = 64

// MemoryChannel is an in-process Channel for tests and local development.
// Delivery is asynchronous (one goroutine per subscriber) so publishers
// never block on slow handlers, and lossy when a subscriber falls behind.
type MemoryChannel struct {
	mu   sync.Mutex
	subs map[int]chan session.ChangeEvent
	next int
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{subs: make(map[int]chan session.ChangeEvent)}
}

func (c *MemoryChannel) Publish(ctx context.Context, ev session.ChangeEvent) error {
	_ = ctx

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber too slow; drop. Best-effort by contract.
		}
	}
	return nil
}

func (c *MemoryChannel) Subscribe(ctx context.Context, fn Handler) (func(), error) {
	ch := make(chan session.ChangeEvent, subscriberBuffer)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	go func() {
		for ev := range ch {
			fn(ctx, ev)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return cancel, nil
}

// SubscriberCount reports live subscriptions. Test helper for verifying
// that engines release subscriptions instead of leaking them.
func (c *MemoryChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
