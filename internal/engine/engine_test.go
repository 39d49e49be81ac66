package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu          sync.Mutex
	state       ClientState
	destroyed   bool
	joinErr     error
	shareErr    error
	ejectErr    error
	shareCalls  int
	audioStates []bool
	videoStates []bool
	handler     func(Event)
}

func newFakeClient() *fakeClient { return &fakeClient{state: ClientStateReady} }

func (f *fakeClient) Join(ctx context.Context, url, userName, token string) error {
	if f.joinErr != nil {
		return f.joinErr
	}
	f.mu.Lock()
	f.state = ClientStateJoined
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Leave(ctx context.Context) error {
	f.mu.Lock()
	f.state = ClientStateReady
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Destroy() error {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) State() ClientState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) SetLocalAudio(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	f.audioStates = append(f.audioStates, enabled)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) SetLocalVideo(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	f.videoStates = append(f.videoStates, enabled)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) StartScreenShare(ctx context.Context) error {
	f.mu.Lock()
	f.shareCalls++
	f.mu.Unlock()
	return f.shareErr
}
func (f *fakeClient) StopScreenShare(ctx context.Context) error { return f.shareErr }

func (f *fakeClient) UpdateParticipant(ctx context.Context, sessionID string, u ParticipantUpdate) error {
	return nil
}
func (f *fakeClient) EjectParticipant(ctx context.Context, sessionID string) error { return f.ejectErr }
func (f *fakeClient) SetRoomLocked(ctx context.Context, locked bool) error         { return nil }
func (f *fakeClient) SendAppMessage(ctx context.Context, data []byte, to string) error {
	return nil
}
func (f *fakeClient) SetEventHandler(h func(Event)) { f.handler = h }

func (f *fakeClient) wasDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func resetStray() {
	strayMu.Lock()
	strayClient = nil
	strayMu.Unlock()
}

func newTestEngine(t *testing.T, platform Platform) (*Engine, *fakeClient) {
	t.Helper()
	resetStray()
	client := newFakeClient()
	e := New(func() (CallClient, error) { return client, nil }, platform, nil)
	e.recreateDelay = time.Millisecond
	return e, client
}

func desktop() Platform {
	return Platform{UserAgent: "Mozilla/5.0 (Macintosh)", ScreenCaptureSupported: true}
}

func joinTestEngine(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Join(context.Background(), "https://x.daily.co/room", "alice", "tok"))
}

func TestInitializeIdempotent(t *testing.T) {
	resetStray()
	created := 0
	e := New(func() (CallClient, error) {
		created++
		return newFakeClient(), nil
	}, desktop(), nil)
	e.recreateDelay = time.Millisecond

	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, 1, created)
	assert.Equal(t, StateIdle, e.State())
}

func TestInitializeReplacesBrokenClient(t *testing.T) {
	resetStray()
	var clients []*fakeClient
	e := New(func() (CallClient, error) {
		c := newFakeClient()
		clients = append(clients, c)
		return c, nil
	}, desktop(), nil)
	e.recreateDelay = time.Millisecond

	require.NoError(t, e.Initialize(context.Background()))
	clients[0].mu.Lock()
	clients[0].state = ClientStateBroken
	clients[0].mu.Unlock()

	require.NoError(t, e.Initialize(context.Background()))
	require.Len(t, clients, 2)
	assert.True(t, clients[0].wasDestroyed())
	assert.False(t, clients[1].wasDestroyed())
	assert.Equal(t, StateIdle, e.State())
}

func TestInitializeDestroysStrayFromPriorSession(t *testing.T) {
	e1, c1 := newTestEngine(t, desktop())
	require.NoError(t, e1.Initialize(context.Background()))

	// A second engine must tear down the first engine's live client before
	// creating its own.
	c2 := newFakeClient()
	e2 := New(func() (CallClient, error) { return c2, nil }, desktop(), nil)
	e2.recreateDelay = time.Millisecond
	require.NoError(t, e2.Initialize(context.Background()))

	assert.True(t, c1.wasDestroyed())
	assert.False(t, c2.wasDestroyed())
}

func TestInitializeFactoryError(t *testing.T) {
	resetStray()
	e := New(func() (CallClient, error) { return nil, errors.New("sdk exploded") }, desktop(), nil)
	e.recreateDelay = time.Millisecond

	err := e.Initialize(context.Background())
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInitFailed, ee.Code)
	assert.Equal(t, StateError, e.State())
}

func TestJoinRequiresIdle(t *testing.T) {
	e, _ := newTestEngine(t, desktop())

	err := e.Join(context.Background(), "url", "alice", "tok")
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidState, ee.Code)

	joinTestEngine(t, e)
	err = e.Join(context.Background(), "url", "alice", "tok")
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidState, ee.Code)
}

func TestJoinEnablesLocalMedia(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	joinTestEngine(t, e)

	snap := e.Snapshot()
	assert.Equal(t, StateJoined, snap.State)
	assert.True(t, snap.LocalAudio)
	assert.True(t, snap.LocalVideo)
	assert.Equal(t, []bool{true}, client.audioStates)
	assert.Equal(t, []bool{true}, client.videoStates)
}

func TestJoinFailureSetsErrorState(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	client.joinErr = errors.New("connection refused by server")
	require.NoError(t, e.Initialize(context.Background()))

	err := e.Join(context.Background(), "url", "alice", "tok")
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeConnection, ee.Code)
	assert.True(t, ee.Recoverable)
	assert.Equal(t, StateError, e.State())
}

func TestLeaveNoopUnlessJoined(t *testing.T) {
	e, _ := newTestEngine(t, desktop())
	require.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, StateIdle, e.State())

	joinTestEngine(t, e)
	require.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, StateLeft, e.State())

	snap := e.Snapshot()
	assert.False(t, snap.LocalAudio)
	assert.False(t, snap.LocalVideo)
	assert.Empty(t, snap.Participants)
}

func TestScreenShareBlockedOnMobile(t *testing.T) {
	e, client := newTestEngine(t, Platform{
		UserAgent:              "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)",
		ScreenCaptureSupported: true,
	})
	joinTestEngine(t, e)

	err := e.StartScreenShare(context.Background())
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeScreenShare, ee.Code)
	assert.Contains(t, ee.Message, "mobile")
	// The client must never be asked to share.
	assert.Zero(t, client.shareCalls)
	assert.False(t, e.Snapshot().ScreenShare)
}

func TestScreenShareBlockedWithoutCaptureSupport(t *testing.T) {
	e, _ := newTestEngine(t, Platform{UserAgent: "Mozilla/5.0 (Macintosh)", ScreenCaptureSupported: false})
	joinTestEngine(t, e)

	err := e.StartScreenShare(context.Background())
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Message, "not supported")
}

func TestScreenShareErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{"cancelled", ErrScreenShareCancelled, "cancelled"},
		{"permission", ErrScreenSharePermission, "permission"},
		{"not supported", ErrScreenShareNotSupported, "not supported"},
		{"no source", ErrScreenShareNoSource, "No screen or window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, client := newTestEngine(t, desktop())
			joinTestEngine(t, e)
			client.shareErr = tc.err

			err := e.StartScreenShare(context.Background())
			var ee *EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, CodeScreenShare, ee.Code)
			assert.Contains(t, ee.Message, tc.message)
			assert.False(t, e.Snapshot().ScreenShare)
		})
	}
}

func TestScreenShareToggles(t *testing.T) {
	e, _ := newTestEngine(t, desktop())
	joinTestEngine(t, e)

	require.NoError(t, e.StartScreenShare(context.Background()))
	assert.True(t, e.Snapshot().ScreenShare)
	require.NoError(t, e.StopScreenShare(context.Background()))
	assert.False(t, e.Snapshot().ScreenShare)
}

func TestModerationRequiresJoined(t *testing.T) {
	e, _ := newTestEngine(t, desktop())
	require.NoError(t, e.Initialize(context.Background()))

	err := e.MuteParticipant(context.Background(), "sess-1")
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidState, ee.Code)
}

func TestModerationErrorNamesAction(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	joinTestEngine(t, e)
	client.ejectErr = errors.New("no permission")

	err := e.RemoveParticipant(context.Background(), "sess-1")
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeModerationFailed, ee.Code)
	assert.Contains(t, ee.Message, "failed to remove participant")
	// The session survives a failed moderation action.
	assert.Equal(t, StateJoined, e.State())
}

func TestRoomLockState(t *testing.T) {
	e, _ := newTestEngine(t, desktop())
	joinTestEngine(t, e)

	require.NoError(t, e.LockRoom(context.Background()))
	assert.True(t, e.Snapshot().RoomLocked)
	require.NoError(t, e.UnlockRoom(context.Background()))
	assert.False(t, e.Snapshot().RoomLocked)
}

func TestEventDispatchSurvivesPanickingHandler(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	require.NoError(t, e.Initialize(context.Background()))

	received := 0
	e.On(EventRecordingStarted, func(Event) { panic("listener bug") })
	e.On(EventRecordingStarted, func(Event) { received++ })

	client.handler(Event{Type: EventRecordingStarted})
	assert.Equal(t, 1, received)
}

func TestParticipantTracking(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	joinTestEngine(t, e)

	client.handler(Event{Type: EventParticipantJoined, Participant: &Participant{SessionID: "s1", UserName: "bob"}})
	client.handler(Event{Type: EventParticipantJoined, Participant: &Participant{SessionID: "s2", UserName: "carol"}})
	client.handler(Event{Type: EventParticipantUpdated, Participant: &Participant{SessionID: "s1", UserName: "bob", AudioEnabled: true}})

	snap := e.Snapshot()
	require.Len(t, snap.Participants, 2)
	assert.True(t, snap.Participants["s1"].AudioEnabled)

	client.handler(Event{Type: EventParticipantLeft, Participant: &Participant{SessionID: "s1"}})
	assert.Len(t, e.Snapshot().Participants, 1)
}

func TestOffRemovesListener(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	require.NoError(t, e.Initialize(context.Background()))

	calls := 0
	id := e.On(EventAppMessage, func(Event) { calls++ })
	client.handler(Event{Type: EventAppMessage})
	e.Off(EventAppMessage, id)
	client.handler(Event{Type: EventAppMessage})
	assert.Equal(t, 1, calls)
}

func TestDestroyFromAnyState(t *testing.T) {
	e, client := newTestEngine(t, desktop())
	joinTestEngine(t, e)

	e.Destroy()
	assert.True(t, client.wasDestroyed())
	assert.Equal(t, StateIdle, e.State())
	assert.Empty(t, e.Snapshot().Participants)
}

func TestNormalizeClassifiesRecoverable(t *testing.T) {
	cases := []struct {
		err         string
		code        string
		recoverable bool
	}{
		{"request timed out", CodeTimeout, true},
		{"network unreachable", CodeNetwork, true},
		{"connection reset by peer", CodeConnection, true},
		{"room is full", CodeJoinFailed, false},
	}
	for _, tc := range cases {
		ee := normalize(CodeJoinFailed, errors.New(tc.err))
		assert.Equal(t, tc.code, ee.Code, tc.err)
		assert.Equal(t, tc.recoverable, ee.Recoverable, tc.err)
	}
}
