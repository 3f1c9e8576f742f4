package engine

import (
	"testing"

	"signaling-platform/internal/session"
)

func row(id, caller, receiver string, status session.Status) session.CallSession {
	return session.CallSession{
		ID:         id,
		CallerID:   caller,
		ReceiverID: receiver,
		RoomID:     "room-" + id,
		CallType:   session.CallTypeVideo,
		Status:     status,
	}
}

func hasEffect(effects []Effect, want Effect) bool {
	for _, e := range effects {
		if e == want {
			return true
		}
	}
	return false
}

func TestApplyInviteRings(t *testing.T) {
	next, effects := Apply(Observation{
		Local:    StateIdle,
		Self:     "bob",
		Observed: row("s1", "alice", "bob", session.StatusCalling),
	})
	if next != StateRinging {
		t.Fatalf("next = %s, want %s", next, StateRinging)
	}
	if !hasEffect(effects, EffectRing) {
		t.Fatalf("effects = %v, want ring", effects)
	}
}

func TestApplyInviteReplayIsNoop(t *testing.T) {
	// The same calling row observed again while already ringing must not
	// restart the ring cue.
	next, effects := Apply(Observation{
		Local:    StateRinging,
		Self:     "bob",
		InviteID: "s1",
		Observed: row("s1", "alice", "bob", session.StatusCalling),
	})
	if next != StateRinging || len(effects) != 0 {
		t.Fatalf("got %s %v, want ringing with no effects", next, effects)
	}
}

func TestApplyNewerInviteReplacesRing(t *testing.T) {
	next, effects := Apply(Observation{
		Local:    StateRinging,
		Self:     "bob",
		InviteID: "s1",
		Observed: row("s2", "carol", "bob", session.StatusCalling),
	})
	if next != StateRinging {
		t.Fatalf("next = %s, want %s", next, StateRinging)
	}
	if !hasEffect(effects, EffectRing) {
		t.Fatalf("effects = %v, want ring for replacement invite", effects)
	}
}

func TestApplyInviteIgnoredWhileBusy(t *testing.T) {
	for _, local := range []State{StateCalling, StateAccepted, StateInCall} {
		next, effects := Apply(Observation{
			Local:     local,
			Self:      "bob",
			SessionID: "mine",
			Observed:  row("s9", "carol", "bob", session.StatusCalling),
		})
		if next != local || len(effects) != 0 {
			t.Fatalf("local %s: got %s %v, want unchanged", local, next, effects)
		}
	}
}

func TestApplyInviteForSomeoneElseIgnored(t *testing.T) {
	next, effects := Apply(Observation{
		Local:    StateIdle,
		Self:     "bob",
		Observed: row("s1", "alice", "carol", session.StatusCalling),
	})
	if next != StateIdle || len(effects) != 0 {
		t.Fatalf("got %s %v, want idle with no effects", next, effects)
	}
}

func TestApplyOwnAccepted(t *testing.T) {
	next, effects := Apply(Observation{
		Local:     StateCalling,
		Self:      "alice",
		SessionID: "s1",
		Observed:  row("s1", "alice", "bob", session.StatusAccepted),
	})
	if next != StateAccepted {
		t.Fatalf("next = %s, want %s", next, StateAccepted)
	}
	if !hasEffect(effects, EffectEstablishMedia) {
		t.Fatalf("effects = %v, want establish media", effects)
	}
	if !hasEffect(effects, EffectStopRing) {
		t.Fatalf("effects = %v, want stop ring", effects)
	}
}

func TestApplyOwnAcceptedReplayIsNoop(t *testing.T) {
	// Once already in the call, a redelivered accepted event is stale.
	next, effects := Apply(Observation{
		Local:     StateInCall,
		Self:      "alice",
		SessionID: "s1",
		Observed:  row("s1", "alice", "bob", session.StatusAccepted),
	})
	if next != StateInCall || len(effects) != 0 {
		t.Fatalf("got %s %v, want in_call with no effects", next, effects)
	}
}

func TestApplyOwnTerminalMirrors(t *testing.T) {
	cases := []struct {
		status session.Status
		want   State
	}{
		{session.StatusDeclined, StateDeclined},
		{session.StatusEnded, StateEnded},
		{session.StatusCancelled, StateCancelled},
	}
	for _, tc := range cases {
		next, effects := Apply(Observation{
			Local:     StateInCall,
			Self:      "alice",
			SessionID: "s1",
			Observed:  row("s1", "alice", "bob", tc.status),
		})
		if next != tc.want {
			t.Fatalf("status %s: next = %s, want %s", tc.status, next, tc.want)
		}
		if !hasEffect(effects, EffectTeardown) {
			t.Fatalf("status %s: effects = %v, want teardown", tc.status, effects)
		}
	}
}

func TestApplyTerminalIsAbsorbing(t *testing.T) {
	next, effects := Apply(Observation{
		Local:     StateEnded,
		Self:      "alice",
		SessionID: "s1",
		Observed:  row("s1", "alice", "bob", session.StatusAccepted),
	})
	if next != StateEnded || len(effects) != 0 {
		t.Fatalf("got %s %v, want ended with no effects", next, effects)
	}
}

func TestApplyInviteCancelledWhileRinging(t *testing.T) {
	next, effects := Apply(Observation{
		Local:    StateRinging,
		Self:     "bob",
		InviteID: "s1",
		Observed: row("s1", "alice", "bob", session.StatusCancelled),
	})
	if next != StateIdle {
		t.Fatalf("next = %s, want %s", next, StateIdle)
	}
	if !hasEffect(effects, EffectStopRing) || !hasEffect(effects, EffectClearInvite) {
		t.Fatalf("effects = %v, want stop ring and clear invite", effects)
	}
}

func TestApplyOwnCallingReplayWhileCalling(t *testing.T) {
	// Our own insert event coming back over the feed must not move us.
	next, effects := Apply(Observation{
		Local:     StateCalling,
		Self:      "alice",
		SessionID: "s1",
		Observed:  row("s1", "alice", "bob", session.StatusCalling),
	})
	if next != StateCalling || len(effects) != 0 {
		t.Fatalf("got %s %v, want calling with no effects", next, effects)
	}
}
