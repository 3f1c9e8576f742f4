package engine

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryReusesEnginePerIdentity(t *testing.T) {
	h := newHarness()
	reg := NewRegistry(func(identity string) (*Engine, error) {
		return New(Config{
			Identity: identity,
			Sessions: h.svc,
			Channel:  h.channel,
			Tokens:   h.issuer,
			Media:    h.media,
		})
	})
	defer reg.StopAll(context.Background())

	a1, err := reg.For(context.Background(), "alice")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	a2, err := reg.For(context.Background(), "alice")
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("same identity should reuse the engine")
	}

	b, err := reg.For(context.Background(), "bob")
	if err != nil {
		t.Fatalf("For(bob): %v", err)
	}
	if b == a1 {
		t.Fatalf("distinct identities must not share an engine")
	}
}

func TestRegistryRejectsEmptyIdentity(t *testing.T) {
	reg := NewRegistry(func(identity string) (*Engine, error) {
		t.Fatalf("build should not run for empty identity")
		return nil, nil
	})
	if _, err := reg.For(context.Background(), ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestRegistryStartsInviteListener(t *testing.T) {
	h := newHarness()
	reg := NewRegistry(func(identity string) (*Engine, error) {
		return New(Config{
			Identity: identity,
			Sessions: h.svc,
			Channel:  h.channel,
			Tokens:   h.issuer,
			Media:    h.media,
		})
	})
	defer reg.StopAll(context.Background())

	ctx := context.Background()
	bob, err := reg.For(ctx, "bob")
	if err != nil {
		t.Fatalf("For(bob): %v", err)
	}

	alice := h.engine(t, "alice")
	if _, err := alice.StartCall(ctx, "bob", "video", ""); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	// The registry wired ListenInvites on first use; bob must ring without
	// any explicit listen call.
	waitFor(t, func() bool { return bob.Snapshot().Status == StateRinging })
}
