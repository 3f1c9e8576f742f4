package engine

import (
	"context"
	"sync"
)

// Registry hands out one engine per authenticated user on this node. The
// first request for an identity builds the engine and starts its invite
// listener; later requests reuse it.
type Registry struct {
	build func(identity string) (*Engine, error)

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewRegistry(build func(identity string) (*Engine, error)) *Registry {
	return &Registry{
		build:   build,
		engines: make(map[string]*Engine),
	}
}

// For returns the engine for identity, creating it on first use.
func (r *Registry) For(ctx context.Context, identity string) (*Engine, error) {
	if identity == "" {
		return nil, ErrNotAuthenticated
	}

	r.mu.Lock()
	if e, ok := r.engines[identity]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	// Build outside the lock; construction may touch the network.
	e, err := r.build(identity)
	if err != nil {
		return nil, err
	}
	if err := e.ListenInvites(ctx); err != nil {
		e.Stop(ctx)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.engines[identity]; ok {
		// Lost the race to another request for the same user.
		go e.Stop(context.WithoutCancel(ctx))
		return existing, nil
	}
	r.engines[identity] = e
	return e, nil
}

// StopAll stops every engine. Used during server shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for _, e := range engines {
		e.Stop(ctx)
	}
}
