// Package engine owns the lifecycle of exactly one live call connection.
// It wraps the provider's call client behind a stable, UI-agnostic state
// machine and re-emits provider events in a normalized vocabulary, so the
// provider SDK can be swapped without touching consumers.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the engine's connection state.
// idle -> initializing -> idle -> joining -> joined -> leaving -> left;
// any state may transition to error.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateJoining      State = "joining"
	StateJoined       State = "joined"
	StateLeaving      State = "leaving"
	StateLeft         State = "left"
	StateError        State = "error"
)

// ClientState is the provider call client's own health as reported by the SDK.
type ClientState string

const (
	ClientStateNew    ClientState = "new"
	ClientStateReady  ClientState = "ready"
	ClientStateJoined ClientState = "joined"
	ClientStateBroken ClientState = "broken"
)

// ParticipantUpdate carries moderation changes applied to a remote participant.
type ParticipantUpdate struct {
	SetAudio *bool
	SetVideo *bool
}

// CallClient is the provider SDK boundary the engine drives. Implementations
// wrap the vendor call object; no provider types cross this interface.
type CallClient interface {
	Join(ctx context.Context, url, userName, token string) error
	Leave(ctx context.Context) error
	Destroy() error
	State() ClientState

	SetLocalAudio(ctx context.Context, enabled bool) error
	SetLocalVideo(ctx context.Context, enabled bool) error
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) error

	UpdateParticipant(ctx context.Context, sessionID string, u ParticipantUpdate) error
	EjectParticipant(ctx context.Context, sessionID string) error
	SetRoomLocked(ctx context.Context, locked bool) error
	SendAppMessage(ctx context.Context, data []byte, toSessionID string) error

	// SetEventHandler registers the single sink the client forwards SDK
	// events into. The engine translates these to its own Event vocabulary.
	SetEventHandler(func(Event))
}

// ClientFactory creates a fresh call client.
type ClientFactory func() (CallClient, error)

// Platform describes the environment the engine runs in, reported by the
// consumer at construction. Screen share is gated on it.
type Platform struct {
	UserAgent              string
	ScreenCaptureSupported bool
}

// The provider SDK allows only one live call instance per process; a stray
// instance left over from a prior session is destroyed before creating a
// new one.
var (
	strayMu     sync.Mutex
	strayClient CallClient
)

func trackClient(c CallClient) {
	strayMu.Lock()
	strayClient = c
	strayMu.Unlock()
}

func destroyStray(skip CallClient, logger *zap.Logger) {
	strayMu.Lock()
	c := strayClient
	strayMu.Unlock()
	if c == nil || c == skip {
		return
	}
	if err := c.Destroy(); err != nil {
		logger.Warn("destroying stray call instance failed", zap.Error(err))
	}
	strayMu.Lock()
	if strayClient == c {
		strayClient = nil
	}
	strayMu.Unlock()
}

// Engine is a stateful wrapper around one active call connection.
// It is safe for concurrent use; exactly one call object is live at a time.
type Engine struct {
	mu       sync.Mutex
	state    State
	client   CallClient
	factory  ClientFactory
	platform Platform
	logger   *zap.Logger

	initializing bool

	localAudio   bool
	localVideo   bool
	screenShare  bool
	roomLocked   bool
	participants map[string]Participant

	listeners *listeners

	// recreateDelay is the pause between destroying a broken client and
	// creating its replacement; shortened in tests.
	recreateDelay time.Duration
}

// New creates an engine. The factory is invoked on (re-)initialization.
func New(factory ClientFactory, platform Platform, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		state:         StateIdle,
		factory:       factory,
		platform:      platform,
		logger:        logger,
		participants:  make(map[string]Participant),
		listeners:     newListeners(logger),
		recreateDelay: 250 * time.Millisecond,
	}
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// On registers a listener for an event type and returns its id for Off.
func (e *Engine) On(t EventType, h Handler) int {
	return e.listeners.add(t, h)
}

// Off removes a listener registered with On.
func (e *Engine) Off(t EventType, id int) {
	e.listeners.remove(t, id)
}

// Initialize sets up the call client. Idempotent: a no-op when the engine is
// already ready or an initialization is already in flight (guards against
// duplicate concurrent initialization from consumer re-mounting). A client
// in a bad state is destroyed, the engine pauses briefly, then recreates it.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initializing {
		e.mu.Unlock()
		return nil
	}
	if e.client != nil && e.state == StateIdle && e.client.State() != ClientStateBroken {
		e.mu.Unlock()
		return nil
	}
	e.initializing = true
	stale := e.client
	e.client = nil
	e.state = StateInitializing
	e.mu.Unlock()

	if stale != nil {
		if err := stale.Destroy(); err != nil {
			e.logger.Warn("destroying stale call client failed", zap.Error(err))
		}
		select {
		case <-time.After(e.recreateDelay):
		case <-ctx.Done():
			e.finishInit(nil, StateError)
			return normalize(CodeInitFailed, ctx.Err())
		}
	}
	destroyStray(nil, e.logger)

	client, err := e.factory()
	if err != nil {
		e.finishInit(nil, StateError)
		return normalize(CodeInitFailed, err)
	}
	client.SetEventHandler(e.forward)
	trackClient(client)
	e.finishInit(client, StateIdle)
	e.logger.Debug("call client initialized")
	return nil
}

func (e *Engine) finishInit(client CallClient, state State) {
	e.mu.Lock()
	e.client = client
	e.state = state
	e.initializing = false
	e.mu.Unlock()
}

// Join connects to a room. Valid only from idle. On success local audio and
// video are explicitly re-enabled so the user is always self-visible
// regardless of provider defaults.
func (e *Engine) Join(ctx context.Context, url, userName, token string) error {
	e.mu.Lock()
	if e.state != StateIdle || e.client == nil {
		state := e.state
		e.mu.Unlock()
		return invalidState("join", state)
	}
	e.state = StateJoining
	client := e.client
	e.mu.Unlock()

	if err := client.Join(ctx, url, userName, token); err != nil {
		e.setState(StateError)
		return normalize(CodeJoinFailed, err)
	}
	if err := client.SetLocalAudio(ctx, true); err != nil {
		e.logger.Warn("enable local audio after join failed", zap.Error(err))
	}
	if err := client.SetLocalVideo(ctx, true); err != nil {
		e.logger.Warn("enable local video after join failed", zap.Error(err))
	}

	e.mu.Lock()
	e.state = StateJoined
	e.localAudio = true
	e.localVideo = true
	e.mu.Unlock()
	return nil
}

// Leave disconnects from the room. A no-op unless joined.
func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateJoined {
		e.mu.Unlock()
		return nil
	}
	e.state = StateLeaving
	client := e.client
	e.mu.Unlock()

	if err := client.Leave(ctx); err != nil {
		e.setState(StateError)
		return normalize(CodeLeaveFailed, err)
	}

	e.mu.Lock()
	e.state = StateLeft
	e.localAudio = false
	e.localVideo = false
	e.screenShare = false
	e.participants = make(map[string]Participant)
	e.mu.Unlock()
	return nil
}

// Destroy tears down the call client and clears all listeners. Safe from any
// state; destroy errors are logged, not returned.
func (e *Engine) Destroy() {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.state = StateIdle
	e.initializing = false
	e.localAudio = false
	e.localVideo = false
	e.screenShare = false
	e.roomLocked = false
	e.participants = make(map[string]Participant)
	e.mu.Unlock()

	e.listeners.clear()
	if client != nil {
		if err := client.Destroy(); err != nil {
			e.logger.Warn("call client destroy failed", zap.Error(err))
		}
		strayMu.Lock()
		if strayClient == client {
			strayClient = nil
		}
		strayMu.Unlock()
	}
}

// SetLocalAudio toggles the local microphone. Valid only while joined.
func (e *Engine) SetLocalAudio(ctx context.Context, enabled bool) error {
	client, err := e.joinedClient("toggle audio")
	if err != nil {
		return err
	}
	if err := client.SetLocalAudio(ctx, enabled); err != nil {
		return normalize(CodeMediaFailed, err)
	}
	e.mu.Lock()
	e.localAudio = enabled
	e.mu.Unlock()
	return nil
}

// SetLocalVideo toggles the local camera. Valid only while joined.
func (e *Engine) SetLocalVideo(ctx context.Context, enabled bool) error {
	client, err := e.joinedClient("toggle video")
	if err != nil {
		return err
	}
	if err := client.SetLocalVideo(ctx, enabled); err != nil {
		return normalize(CodeMediaFailed, err)
	}
	e.mu.Lock()
	e.localVideo = enabled
	e.mu.Unlock()
	return nil
}

// mobileAgents are user-agent fragments that identify platforms without
// screen-capture support.
var mobileAgents = []string{"android", "iphone", "ipad", "mobile"}

// StartScreenShare begins sharing the local screen. Fails fast on mobile
// platforms and when the environment lacks a screen-capture API, with
// platform-appropriate messages.
func (e *Engine) StartScreenShare(ctx context.Context) error {
	ua := strings.ToLower(e.platform.UserAgent)
	for _, m := range mobileAgents {
		if strings.Contains(ua, m) {
			return &EngineError{Code: CodeScreenShare, Message: "Screen sharing is not available on mobile devices."}
		}
	}
	if !e.platform.ScreenCaptureSupported {
		return &EngineError{Code: CodeScreenShare, Message: "Screen sharing is not supported in this browser."}
	}
	client, err := e.joinedClient("share screen")
	if err != nil {
		return err
	}
	if err := client.StartScreenShare(ctx); err != nil {
		return screenShareError(err)
	}
	e.mu.Lock()
	e.screenShare = true
	e.mu.Unlock()
	return nil
}

// StopScreenShare stops sharing the local screen. Valid only while joined.
func (e *Engine) StopScreenShare(ctx context.Context) error {
	client, err := e.joinedClient("stop screen share")
	if err != nil {
		return err
	}
	if err := client.StopScreenShare(ctx); err != nil {
		return screenShareError(err)
	}
	e.mu.Lock()
	e.screenShare = false
	e.mu.Unlock()
	return nil
}

// MuteParticipant mutes a remote participant's microphone.
func (e *Engine) MuteParticipant(ctx context.Context, sessionID string) error {
	return e.moderate(ctx, "mute participant", func(c CallClient) error {
		off := false
		return c.UpdateParticipant(ctx, sessionID, ParticipantUpdate{SetAudio: &off})
	})
}

// UnmuteParticipant unmutes a remote participant's microphone.
func (e *Engine) UnmuteParticipant(ctx context.Context, sessionID string) error {
	return e.moderate(ctx, "unmute participant", func(c CallClient) error {
		on := true
		return c.UpdateParticipant(ctx, sessionID, ParticipantUpdate{SetAudio: &on})
	})
}

// SetParticipantCamera enables or disables a remote participant's camera.
func (e *Engine) SetParticipantCamera(ctx context.Context, sessionID string, enabled bool) error {
	return e.moderate(ctx, "update participant camera", func(c CallClient) error {
		return c.UpdateParticipant(ctx, sessionID, ParticipantUpdate{SetVideo: &enabled})
	})
}

// RemoveParticipant ejects a remote participant from the room.
func (e *Engine) RemoveParticipant(ctx context.Context, sessionID string) error {
	return e.moderate(ctx, "remove participant", func(c CallClient) error {
		return c.EjectParticipant(ctx, sessionID)
	})
}

// LockRoom prevents new participants from joining.
func (e *Engine) LockRoom(ctx context.Context) error {
	err := e.moderate(ctx, "lock room", func(c CallClient) error {
		return c.SetRoomLocked(ctx, true)
	})
	if err == nil {
		e.mu.Lock()
		e.roomLocked = true
		e.mu.Unlock()
	}
	return err
}

// UnlockRoom allows new participants to join again.
func (e *Engine) UnlockRoom(ctx context.Context) error {
	err := e.moderate(ctx, "unlock room", func(c CallClient) error {
		return c.SetRoomLocked(ctx, false)
	})
	if err == nil {
		e.mu.Lock()
		e.roomLocked = false
		e.mu.Unlock()
	}
	return err
}

// SendMessage sends an app message to one participant, or to everyone when
// toSessionID is empty.
func (e *Engine) SendMessage(ctx context.Context, data []byte, toSessionID string) error {
	return e.moderate(ctx, "send message", func(c CallClient) error {
		return c.SendAppMessage(ctx, data, toSessionID)
	})
}

// Snapshot of joined-call state for consumers.
type Snapshot struct {
	State        State
	LocalAudio   bool
	LocalVideo   bool
	ScreenShare  bool
	RoomLocked   bool
	Participants map[string]Participant
}

// Snapshot returns a copy of the live call state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	parts := make(map[string]Participant, len(e.participants))
	for k, v := range e.participants {
		parts[k] = v
	}
	return Snapshot{
		State:        e.state,
		LocalAudio:   e.localAudio,
		LocalVideo:   e.localVideo,
		ScreenShare:  e.screenShare,
		RoomLocked:   e.roomLocked,
		Participants: parts,
	}
}

func (e *Engine) joinedClient(op string) (CallClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateJoined || e.client == nil {
		return nil, invalidState(op, e.state)
	}
	return e.client, nil
}

// moderate wraps a moderation action: valid only while joined, failures
// surface the specific action that failed without terminating the session.
func (e *Engine) moderate(ctx context.Context, op string, fn func(CallClient) error) error {
	client, err := e.joinedClient(op)
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return &EngineError{Code: CodeModerationFailed, Message: "failed to " + op + ": " + err.Error()}
	}
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// forward receives client events, maintains the participant map, and
// re-emits to registered listeners.
func (e *Engine) forward(ev Event) {
	e.mu.Lock()
	switch ev.Type {
	case EventParticipantJoined, EventParticipantUpdated:
		if ev.Participant != nil {
			e.participants[ev.Participant.SessionID] = *ev.Participant
		}
	case EventParticipantLeft:
		if ev.Participant != nil {
			delete(e.participants, ev.Participant.SessionID)
		}
	}
	e.mu.Unlock()
	e.listeners.dispatch(ev)
}
