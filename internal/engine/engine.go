// Package engine implements client-side call signaling: creating sessions,
// discovering inbound invites, converging on the session record's status,
// and handing accepted calls off to the media client.
//
// Coordination happens exclusively through the session record store and its
// change feed. The feed is best-effort, so every observation path is paired
// with a catch-up read and every handler is idempotent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signaling-platform/internal/history"
	"signaling-platform/internal/media"
	"signaling-platform/internal/notify"
	"signaling-platform/internal/session"
	"signaling-platform/internal/token"
)

var (
	// ErrNotAuthenticated: no identity available when starting or accepting.
	ErrNotAuthenticated = errors.New("engine: not authenticated")
	// ErrStoreWriteFailed: the session insert/update was rejected.
	ErrStoreWriteFailed = errors.New("engine: store write failed")
	// ErrTokenIssuance: the media credential could not be minted. The
	// session record is left in its last successful status.
	ErrTokenIssuance = errors.New("engine: token issuance failed")
	// ErrMediaJoinFailed: the media join failed after a valid token.
	ErrMediaJoinFailed = errors.New("engine: media join failed")
	// ErrCallInProgress: the pair already has a live call.
	ErrCallInProgress = errors.New("engine: call already in progress")
	// ErrInvalidState: the operation does not apply to the current state.
	ErrInvalidState = errors.New("engine: invalid state for operation")
	// ErrNotParticipant: the user is not a party to the session.
	ErrNotParticipant = errors.New("engine: not a participant in session")
)

// Snapshot is the observable engine state handed to the UI layer.
type Snapshot struct {
	Status    State   `json:"status"`
	Invite    *Invite `json:"incoming_invite,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	RoomID    string  `json:"room_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Config wires one engine instance. Identity, Sessions, Channel, Tokens and
// Media are required; Guard and History are optional extras.
type Config struct {
	Identity string
	Sessions *session.Service
	Channel  notify.Channel
	Tokens   token.Issuer
	Media    media.Client
	Guard    Guard
	History  *history.Service
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Engine is one user's signaling state machine. Engines never talk to each
// other directly; they converge through the session record store.
//
// Engines are created per identity with an explicit lifecycle (Stop), never
// shared process-wide, so multiple logical sessions can coexist without
// cross-talk.
type Engine struct {
	identity string
	sessions *session.Service
	channel  notify.Channel
	tokens   token.Issuer
	media    media.Client
	guard    Guard
	history  *history.Service
	log      *slog.Logger
	clock    func() time.Time

	mu           sync.Mutex
	state        State
	invite       *Invite
	sessionID    string
	roomID       string
	peerID       string
	isCaller     bool
	renderTarget media.RenderTarget
	lastErr      string
	mediaHandle  *media.Handle
	mediaBusy    bool

	// At most one invite subscription and one session-scoped subscription
	// may be live; replacing either releases the old one first.
	inviteCancel  func()
	sessionCancel func()

	watcherMu  sync.Mutex
	watcherSeq int
	watchers   map[int]func(Snapshot)
}

func New(cfg Config) (*Engine, error) {
	if cfg.Identity == "" {
		return nil, ErrNotAuthenticated
	}
	if cfg.Sessions == nil || cfg.Channel == nil || cfg.Tokens == nil || cfg.Media == nil {
		return nil, errors.New("engine: sessions, channel, tokens and media are required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		identity: cfg.Identity,
		sessions: cfg.Sessions,
		channel:  cfg.Channel,
		tokens:   cfg.Tokens,
		media:    cfg.Media,
		guard:    cfg.Guard,
		history:  cfg.History,
		log:      log.With("component", "engine", "user_id", cfg.Identity),
		clock:    clock,
		state:    StateIdle,
		watchers: make(map[int]func(Snapshot)),
	}, nil
}

// Snapshot returns the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	var inv *Invite
	if e.invite != nil {
		cp := *e.invite
		inv = &cp
	}
	return Snapshot{
		Status:    e.state,
		Invite:    inv,
		SessionID: e.sessionID,
		RoomID:    e.roomID,
		Error:     e.lastErr,
	}
}

// OnChange registers a watcher invoked with a snapshot after every state
// change. Watchers must not block. The returned func unregisters it.
func (e *Engine) OnChange(fn func(Snapshot)) func() {
	e.watcherMu.Lock()
	id := e.watcherSeq
	e.watcherSeq++
	e.watchers[id] = fn
	e.watcherMu.Unlock()
	return func() {
		e.watcherMu.Lock()
		delete(e.watchers, id)
		e.watcherMu.Unlock()
	}
}

func (e *Engine) notifyWatchers() {
	snap := e.Snapshot()
	e.watcherMu.Lock()
	watchers := make([]func(Snapshot), 0, len(e.watchers))
	for _, fn := range e.watchers {
		watchers = append(watchers, fn)
	}
	e.watcherMu.Unlock()
	for _, fn := range watchers {
		fn(snap)
	}
}

/* ===================== OPERATIONS ===================== */

// StartCall creates a fresh session and begins watching it. The render
// target is kept so the caller side can join the room the moment the peer's
// acceptance is observed.
func (e *Engine) StartCall(ctx context.Context, receiverID string, callType session.CallType, target media.RenderTarget) (session.CallSession, error) {
	if e.identity == "" {
		return session.CallSession{}, ErrNotAuthenticated
	}

	e.mu.Lock()
	if e.state == StateCalling || e.state == StateRinging || e.state == StateAccepted || e.state == StateInCall {
		e.mu.Unlock()
		return session.CallSession{}, ErrCallInProgress
	}
	e.mu.Unlock()

	if e.guard != nil {
		ok, err := e.guard.Acquire(ctx, e.identity, receiverID)
		if err != nil {
			// The guard is advisory; a broken guard must not block calls.
			e.log.Warn("pair guard unavailable, proceeding", "err", err)
		} else if !ok {
			return session.CallSession{}, ErrCallInProgress
		}
	}

	cs, err := e.sessions.Create(ctx, e.identity, receiverID, callType)
	if err != nil {
		if e.guard != nil {
			_ = e.guard.Release(ctx, e.identity, receiverID)
		}
		e.setError(fmt.Sprintf("start call: %v", err))
		return session.CallSession{}, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	e.mu.Lock()
	e.state = StateCalling
	e.sessionID = cs.ID
	e.roomID = cs.RoomID
	e.peerID = receiverID
	e.isCaller = true
	e.renderTarget = target
	e.lastErr = ""
	e.mediaHandle = nil
	e.mu.Unlock()

	if err := e.watchSession(ctx, cs.ID); err != nil {
		// The row exists either way; the peer can still pick it up. Surface
		// the subscription failure so the user can retry.
		e.setError(fmt.Sprintf("watch session: %v", err))
	}

	e.record(ctx, history.KindCreated, cs)
	e.log.Info("call started", "session_id", cs.ID, "receiver_id", receiverID, "call_type", callType)
	e.notifyWatchers()
	return cs, nil
}

// ListenInvites starts invite discovery for this engine's user: one bounded
// catch-up read, then an unfiltered subscription filtered client-side.
func (e *Engine) ListenInvites(ctx context.Context) error {
	if e.identity == "" {
		return ErrNotAuthenticated
	}

	// Catch-up first: a subscription established now cannot see rows
	// inserted before it, and the most recent calling row is exactly the
	// invite we would have been rung with.
	if cs, ok, err := e.sessions.LatestCalling(ctx, e.identity); err != nil {
		return err
	} else if ok {
		e.observe(ctx, cs)
	}

	// Deliberately no server-side filtering: filtered subscriptions have
	// been seen to silently drop events. Receiving everything and testing
	// receiver_id here trades bandwidth for not missing calls.
	//
	// Detach from the caller's context: the subscription lives until the
	// engine stops, not until the request that opened it returns.
	cancel, err := e.channel.Subscribe(context.WithoutCancel(ctx), func(ctx context.Context, ev session.ChangeEvent) {
		if ev.Session.ReceiverID != e.identity {
			return
		}
		e.observe(ctx, ev.Session)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.inviteCancel != nil {
		e.inviteCancel()
	}
	e.inviteCancel = cancel
	e.mu.Unlock()
	return nil
}

// AcceptCall accepts the invite currently being rung.
func (e *Engine) AcceptCall(ctx context.Context, sessionID string, target media.RenderTarget) error {
	if e.identity == "" {
		return ErrNotAuthenticated
	}

	e.mu.Lock()
	if e.state != StateRinging || e.invite == nil || e.invite.SessionID != sessionID {
		e.mu.Unlock()
		return ErrInvalidState
	}
	inv := *e.invite
	e.mu.Unlock()

	cs, err := e.sessions.Transition(ctx, sessionID, session.StatusAccepted)
	if err != nil {
		// The record is unaffected; stay ringing so the user can retry.
		e.setError(fmt.Sprintf("accept call: %v", err))
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	e.mu.Lock()
	e.state = StateAccepted
	e.sessionID = cs.ID
	e.roomID = cs.RoomID
	e.peerID = inv.CallerID
	e.isCaller = false
	e.renderTarget = target
	e.invite = nil
	e.lastErr = ""
	e.mu.Unlock()

	// Watch our own session so the peer's hangup is observed.
	if err := e.watchSession(ctx, cs.ID); err != nil {
		e.setError(fmt.Sprintf("watch session: %v", err))
	}

	e.record(ctx, history.KindAccepted, cs)
	e.notifyWatchers()

	return e.establishMedia(ctx, cs.ID, cs.RoomID)
}

// DeclineCall declines the invite currently being rung.
func (e *Engine) DeclineCall(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	if e.state != StateRinging || e.invite == nil || e.invite.SessionID != sessionID {
		e.mu.Unlock()
		return ErrInvalidState
	}
	e.mu.Unlock()

	cs, err := e.sessions.Transition(ctx, sessionID, session.StatusDeclined)
	if err != nil {
		e.setError(fmt.Sprintf("decline call: %v", err))
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	e.mu.Lock()
	e.state = StateDeclined
	e.invite = nil
	e.sessionID = cs.ID
	e.roomID = cs.RoomID
	e.lastErr = ""
	e.mu.Unlock()

	e.record(ctx, history.KindDeclined, cs)
	e.log.Info("call declined", "session_id", sessionID)
	e.notifyWatchers()
	return nil
}

// EndCall ends the given session, or the current one when sessionID is "".
// Only a party to the session may end it. Ending an unanswered outbound
// call doubles as cancellation; the peer observes the terminal row through
// its own subscription.
func (e *Engine) EndCall(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	if sessionID == "" {
		sessionID = e.sessionID
	}
	if sessionID == "" {
		e.mu.Unlock()
		return ErrInvalidState
	}
	current := sessionID == e.sessionID ||
		(e.invite != nil && e.invite.SessionID == sessionID)
	alreadyDone := e.state.Terminal() && sessionID == e.sessionID
	e.mu.Unlock()

	// Idempotent hangup: the peer may have ended first and our own
	// subscription already mirrored it.
	if alreadyDone {
		return nil
	}

	// A session id the engine is not bound to must be checked against the
	// row: only the caller or receiver may end it.
	if !current {
		row, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("end call: %w", err)
		}
		if row.CallerID != e.identity && row.ReceiverID != e.identity {
			return ErrNotParticipant
		}
	}

	cs, err := e.sessions.Transition(ctx, sessionID, session.StatusEnded)
	if err != nil {
		if errors.Is(err, session.ErrStatusConflict) {
			// Someone beat us to a terminal status; converge on the row
			// instead of failing the hangup.
			if row, getErr := e.sessions.Get(ctx, sessionID); getErr == nil {
				e.observe(ctx, row)
				return nil
			}
		}
		e.setError(fmt.Sprintf("end call: %v", err))
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	// Local state and held resources belong to the engine's live call;
	// ending an older session of ours must not disturb them.
	if current {
		e.mu.Lock()
		e.state = StateEnded
		if e.invite != nil && e.invite.SessionID == sessionID {
			e.invite = nil
		}
		e.lastErr = ""
		e.mu.Unlock()

		e.teardown(ctx)
		e.notifyWatchers()
	}

	e.record(ctx, history.KindEnded, cs)
	e.log.Info("call ended", "session_id", sessionID)
	return nil
}

// Stop releases every resource the engine holds: both subscriptions, any
// joined media room, and the pair slot. The engine returns to idle.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.inviteCancel != nil {
		e.inviteCancel()
		e.inviteCancel = nil
	}
	e.mu.Unlock()

	e.teardown(ctx)

	e.mu.Lock()
	e.state = StateIdle
	e.invite = nil
	e.sessionID = ""
	e.roomID = ""
	e.lastErr = ""
	e.mu.Unlock()
}

/* ===================== OBSERVATION PATH ===================== */

// watchSession opens the dedicated subscription for one session id,
// releasing whichever session subscription came before it.
func (e *Engine) watchSession(ctx context.Context, sessionID string) error {
	cancel, err := e.channel.Subscribe(context.WithoutCancel(ctx), func(ctx context.Context, ev session.ChangeEvent) {
		if ev.Session.ID != sessionID {
			return
		}
		e.observe(ctx, ev.Session)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.sessionCancel != nil {
		e.sessionCancel()
	}
	e.sessionCancel = cancel
	e.mu.Unlock()
	return nil
}

// observe runs one record change through the pure transition function and
// executes the resulting effects. Safe under replays and duplicates.
func (e *Engine) observe(ctx context.Context, cs session.CallSession) {
	e.mu.Lock()
	obs := Observation{
		Local:    e.state,
		Self:     e.identity,
		Observed: cs,
	}
	obs.SessionID = e.sessionID
	if e.invite != nil {
		obs.InviteID = e.invite.SessionID
	}

	next, effects := Apply(obs)
	changed := next != e.state || len(effects) > 0
	e.state = next

	var establish, doTeardown bool
	for _, eff := range effects {
		switch eff {
		case EffectRing:
			e.invite = &Invite{
				SessionID: cs.ID,
				CallerID:  cs.CallerID,
				CallType:  cs.CallType,
				RoomID:    cs.RoomID,
			}
			// A fresh ring unbinds any finished session so stale replays
			// for the old id cannot touch the new invite.
			e.sessionID = ""
			e.roomID = ""
			e.log.Info("invite ringing", "session_id", cs.ID, "caller_id", cs.CallerID, "call_type", cs.CallType)
		case EffectStopRing, EffectClearInvite:
			e.invite = nil
		case EffectEstablishMedia:
			establish = true
		case EffectTeardown:
			// Media leave and guard release happen outside the lock.
			doTeardown = true
		}
	}
	sessionID, roomID := e.sessionID, e.roomID
	e.mu.Unlock()

	if doTeardown {
		e.teardown(ctx)
		e.log.Info("call reached terminal status", "session_id", cs.ID, "status", cs.Status)
	}
	if establish {
		if err := e.establishMedia(ctx, sessionID, roomID); err != nil {
			e.log.Warn("media establishment failed", "session_id", sessionID, "err", err)
		}
	}
	if changed {
		e.notifyWatchers()
	}
}

/* ===================== MEDIA HANDOFF ===================== */

// establishMedia mints a credential for (session, room, self) and joins the
// media room. On success the engine reaches in_call. On failure the error is
// surfaced and the session record keeps its last successful status; nothing
// here mutates the row.
func (e *Engine) establishMedia(ctx context.Context, sessionID, roomID string) error {
	if e.identity == "" {
		return ErrNotAuthenticated
	}

	e.mu.Lock()
	if e.mediaBusy || e.mediaHandle != nil {
		e.mu.Unlock()
		return nil
	}
	e.mediaBusy = true
	target := e.renderTarget
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.mediaBusy = false
		e.mu.Unlock()
	}()

	cred, err := e.tokens.Issue(ctx, sessionID, roomID, e.identity)
	if err != nil {
		e.setError(fmt.Sprintf("token issuance: %v", err))
		return fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}

	handle, err := e.media.Join(ctx, cred, target)
	if err != nil {
		e.setError(fmt.Sprintf("media join: %v", err))
		return fmt.Errorf("%w: %v", ErrMediaJoinFailed, err)
	}

	e.mu.Lock()
	if e.state.Terminal() {
		// The call died while we were joining; leave immediately.
		e.mu.Unlock()
		_ = e.media.Leave(ctx, handle)
		return nil
	}
	e.mediaHandle = handle
	e.state = StateInCall
	e.lastErr = ""
	e.mu.Unlock()

	e.log.Info("media established", "session_id", sessionID, "room_id", roomID)
	e.notifyWatchers()
	return nil
}

/* ===================== INTERNAL ===================== */

// teardown releases the session-scoped subscription, leaves the media room
// and frees the pair slot. Idempotent.
func (e *Engine) teardown(ctx context.Context) {
	e.mu.Lock()
	cancel := e.sessionCancel
	e.sessionCancel = nil
	handle := e.mediaHandle
	e.mediaHandle = nil
	releaseGuard := e.isCaller && e.peerID != ""
	peer := e.peerID
	e.isCaller = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		if err := e.media.Leave(ctx, handle); err != nil {
			e.log.Warn("media leave failed", "err", err)
		}
	}
	if releaseGuard && e.guard != nil {
		if err := e.guard.Release(ctx, e.identity, peer); err != nil {
			e.log.Warn("pair slot release failed", "err", err)
		}
	}
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
	e.notifyWatchers()
}

// record appends a history entry. Best-effort: failures are logged, never
// propagated into the signaling path.
func (e *Engine) record(ctx context.Context, kind history.Kind, cs session.CallSession) {
	if e.history == nil {
		return
	}
	err := e.history.Append(ctx, history.Record{
		SessionID:  cs.ID,
		Kind:       kind,
		CallerID:   cs.CallerID,
		ReceiverID: cs.ReceiverID,
		CallType:   string(cs.CallType),
		ActorID:    e.identity,
	})
	if err != nil {
		e.log.Warn("history append failed", "session_id", cs.ID, "err", err)
	}
}
