package engine

import "signaling-platform/internal/session"

// State is the local signaling state of one engine. It is richer than the
// persisted session status: ringing and in_call exist only client-side.
type State string

const (
	StateIdle      State = "idle"
	StateCalling   State = "calling"
	StateRinging   State = "ringing"
	StateAccepted  State = "accepted" // record accepted, media handoff pending
	StateInCall    State = "in_call"
	StateDeclined  State = "declined"
	StateEnded     State = "ended"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateDeclined, StateEnded, StateCancelled:
		return true
	default:
		return false
	}
}

// progress maps a local state onto the persisted status ordering so that
// observations can be deduplicated against local progress.
func (s State) progress() int {
	switch s {
	case StateCalling, StateRinging:
		return 1
	case StateAccepted, StateInCall:
		return 2
	case StateDeclined, StateEnded, StateCancelled:
		return 3
	default:
		return 0
	}
}

// localTerminal mirrors a terminal record status into the local state space.
func localTerminal(st session.Status) State {
	switch st {
	case session.StatusDeclined:
		return StateDeclined
	case session.StatusCancelled:
		return StateCancelled
	default:
		return StateEnded
	}
}

// Invite is the receiver-side transient view of a calling-status session.
// It lives only in engine memory while the call is being rung.
type Invite struct {
	SessionID string           `json:"session_id"`
	CallerID  string           `json:"caller_id"`
	CallType  session.CallType `json:"call_type"`
	RoomID    string           `json:"room_id"`
}

// Effect is a side effect the engine must execute after a transition. The
// transition function itself stays pure so the signaling logic is testable
// without a store or network.
type Effect int

const (
	EffectRing Effect = iota + 1 // record/replace the invite and start the ring cue
	EffectStopRing
	EffectClearInvite
	EffectEstablishMedia // fetch a token and join the media room
	EffectTeardown       // release the session subscription, leave media, free the pair slot
)

// Observation is the input to Apply: the engine's current view plus the
// observed record change.
type Observation struct {
	Local     State
	Self      string
	SessionID string // current session, "" when none
	InviteID  string // current invite session, "" when none
	Observed  session.CallSession
}

// Apply computes the next local state and the side effects for one observed
// session record. It must be idempotent under replays: re-observing a status
// the engine has already acted on yields no effects.
func Apply(o Observation) (State, []Effect) {
	cs := o.Observed

	// Once terminal, nothing moves. Monotonicity is absolute.
	if o.Local.Terminal() && (cs.ID == o.SessionID || cs.ID == o.InviteID) {
		return o.Local, nil
	}

	switch {
	case cs.ID != "" && cs.ID == o.SessionID:
		return applyOwn(o, cs)

	case cs.Status == session.StatusCalling && cs.ReceiverID == o.Self:
		return applyInvite(o, cs)

	case cs.ID != "" && cs.ID == o.InviteID && cs.Status.Terminal():
		// The caller hung up or the invite died some other way while we
		// were still ringing: stop the cue and go back to idle.
		if o.Local == StateRinging {
			return StateIdle, []Effect{EffectStopRing, EffectClearInvite}
		}
		return o.Local, nil

	default:
		// Someone else's session. Not ours to act on.
		return o.Local, nil
	}
}

// applyOwn handles changes to the session this engine is a party to.
func applyOwn(o Observation, cs session.CallSession) (State, []Effect) {
	// Dedup on the record's own monotonic status: a replayed or duplicated
	// event never outranks progress already made locally.
	if cs.Status.Rank() <= o.Local.progress() {
		return o.Local, nil
	}

	if cs.Status.Terminal() {
		return localTerminal(cs.Status), []Effect{EffectStopRing, EffectClearInvite, EffectTeardown}
	}

	if cs.Status == session.StatusAccepted {
		// The peer accepted; time to mint a token and join the room.
		return StateAccepted, []Effect{EffectStopRing, EffectEstablishMedia}
	}

	return o.Local, nil
}

// applyInvite handles a calling-status row addressed to this engine's user.
func applyInvite(o Observation, cs session.CallSession) (State, []Effect) {
	// Re-observing the invite currently being rung is a no-op: one invite
	// record, one ring.
	if cs.ID == o.InviteID && o.Local == StateRinging {
		return o.Local, nil
	}

	// Busy on another call: leave the row alone, the peer's client keeps
	// showing "calling" until someone acts on the record.
	if o.Local == StateCalling || o.Local == StateAccepted || o.Local == StateInCall {
		return o.Local, nil
	}

	// New invite, or a newer invite replacing the one being rung.
	return StateRinging, []Effect{EffectRing}
}
