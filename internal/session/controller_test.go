package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbangera/interview-voice/internal/core"
	"github.com/prajwalbangera/interview-voice/internal/domain"
	"github.com/prajwalbangera/interview-voice/internal/media"
	"github.com/prajwalbangera/interview-voice/internal/status"
)

type fakeGateway struct {
	mu            sync.Mutex
	initCalls     int
	credCalls     int
	teardownCalls int
	initErr       error
	credErr       error
	teardownErr   error
	cred          *domain.Credential
}

func (g *fakeGateway) InitializeSession(_ context.Context, _ string, _ int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	return g.initErr
}

func (g *fakeGateway) FetchCredential(_ context.Context, _, _, _ string) (*domain.Credential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.credCalls++
	if g.credErr != nil {
		return nil, g.credErr
	}
	return g.cred, nil
}

func (g *fakeGateway) TeardownSession(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teardownCalls++
	return g.teardownErr
}

func (g *fakeGateway) counts() (int, int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls, g.credCalls, g.teardownCalls
}

type fakeRoom struct {
	mu           sync.Mutex
	handlers     map[int]core.EventHandler
	nextID       int
	connectCalls int
	connectErr   error
	gotURL       string
	gotToken     string
	publishCalls int
	publishErr   error
	participants []string
	closed       int
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{handlers: make(map[int]core.EventHandler)}
}

func (r *fakeRoom) Subscribe(h core.EventHandler) core.Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *fakeRoom) Connect(_ context.Context, url, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectCalls++
	r.gotURL = url
	r.gotToken = token
	return r.connectErr
}

func (r *fakeRoom) PublishTrack(_ context.Context, _ core.LocalTrack) (core.TrackPublication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishCalls++
	if r.publishErr != nil {
		return nil, r.publishErr
	}
	return fakePublication{}, nil
}

func (r *fakeRoom) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants
}

func (r *fakeRoom) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeRoom) emit(ev core.Event) {
	r.mu.Lock()
	hs := make([]core.EventHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

type fakePublication struct{}

func (fakePublication) SID() string      { return "pub-1" }
func (fakePublication) Unpublish() error { return nil }

type fakeTrack struct {
	mu     sync.Mutex
	closed int
}

func (t *fakeTrack) ID() string   { return "mic-1" }
func (t *fakeTrack) Kind() string { return "audio" }
func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

type fakeDevice struct {
	mu       sync.Mutex
	acquired int
	err      error
	track    *fakeTrack
}

func (d *fakeDevice) Acquire(_ context.Context, _ core.CaptureOptions) (core.LocalTrack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired++
	if d.err != nil {
		return nil, d.err
	}
	d.track = &fakeTrack{}
	return d.track, nil
}

type fakeSinkHandle struct{ id string }

func (h fakeSinkHandle) TrackID() string { return h.id }
func (h fakeSinkHandle) Close() error    { return nil }

type fakeSink struct{}

func (fakeSink) Attach(track core.RemoteTrack) (core.SinkHandle, error) {
	return fakeSinkHandle{id: track.ID()}, nil
}

type remoteTrack string

func (r remoteTrack) ID() string   { return string(r) }
func (r remoteTrack) Kind() string { return "audio" }

type harness struct {
	gw     *fakeGateway
	room   *fakeRoom
	device *fakeDevice
	mgr    *media.Manager
	log    *status.Log
	ctrl   *Controller
	states []domain.ConnectionState
	mu     sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sess, err := domain.NewSession("NORMALIZED_TEST_001", "test_org", "candidate_prajwal")
	require.NoError(t, err)

	h := &harness{
		gw: &fakeGateway{cred: &domain.Credential{
			Token:           "abc",
			ServiceURL:      "wss://x",
			RoomName:        "interview_NORMALIZED_TEST_001",
			ParticipantName: "candidate_prajwal",
		}},
		room:   newFakeRoom(),
		device: &fakeDevice{},
		log:    status.NewLog(),
	}
	h.mgr = media.NewManager(h.device, fakeSink{}, h.log)
	h.ctrl = NewController(sess, h.gw, func() core.RoomConnection { return h.room }, h.mgr, h.log, Config{
		DurationMinutes: 30,
		RequestTimeout:  time.Second,
		ConnectTimeout:  time.Second,
	})
	h.ctrl.OnStateChange(func(s domain.ConnectionState) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) stateSeq() []domain.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ConnectionState, len(h.states))
	copy(out, h.states)
	return out
}

func TestStartHappyPath(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, domain.StateConnecting, h.ctrl.State())
	assert.Equal(t, "wss://x", h.room.gotURL)
	assert.Equal(t, "abc", h.room.gotToken)

	h.room.emit(core.ConnectedEvent{RoomName: "interview_NORMALIZED_TEST_001"})

	assert.Equal(t, domain.StateConnected, h.ctrl.State())
	assert.Equal(t, []domain.ConnectionState{
		domain.StateConnecting,
		domain.StateConnected,
	}, h.stateSeq())
	assert.Equal(t, 1, h.device.acquired, "microphone acquisition attempted exactly once")
	assert.Equal(t, 1, h.room.publishCalls)
}

func TestStartIsIdempotentWhileActive(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Start(context.Background()))

	inits, creds, _ := h.gw.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, creds, "no second credential request while connecting")
	assert.Equal(t, 1, h.room.connectCalls, "no second connection while connecting")

	h.room.emit(core.ConnectedEvent{RoomName: "interview_NORMALIZED_TEST_001"})
	require.NoError(t, h.ctrl.Start(context.Background()))

	inits, creds, _ = h.gw.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 1, creds)
	assert.Equal(t, 1, h.room.connectCalls)
}

func TestCredentialFailureNeverConnects(t *testing.T) {
	h := newHarness(t)
	h.gw.credErr = &core.NetworkError{Op: "credential", Status: http.StatusInternalServerError, Body: "server error"}

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)

	assert.Equal(t, domain.StateFailed, h.ctrl.State())
	assert.Equal(t, []domain.ConnectionState{
		domain.StateConnecting,
		domain.StateFailed,
	}, h.stateSeq())
	assert.Zero(t, h.room.connectCalls, "no connection attempt after credential failure")

	last, ok := h.log.Last()
	require.True(t, ok)
	assert.Equal(t, status.SeverityError, last.Severity)
	assert.Contains(t, last.Message, "500")
	assert.Contains(t, last.Message, "server error")
}

func TestInitializeFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.gw.initErr = &core.NetworkError{Op: "initialize", Err: errors.New("connection refused")}

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.StateFailed, h.ctrl.State())

	_, creds, _ := h.gw.counts()
	assert.Zero(t, creds, "credential never requested after initialize failure")
	assert.Zero(t, h.room.connectCalls)
}

func TestConnectFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.room.connectErr = errors.New("dial tcp: refused")

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.StateFailed, h.ctrl.State())
	assert.Equal(t, 1, h.room.closed, "half-open transport closed on failure")
}

func TestDeviceFailureFailsTheSession(t *testing.T) {
	h := newHarness(t)
	h.device.err = &core.DeviceError{Reason: "device unavailable"}

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})

	assert.Equal(t, domain.StateFailed, h.ctrl.State())
	assert.Equal(t, 1, h.room.closed)
}

func TestStopReleasesEverythingEvenWhenTeardownFails(t *testing.T) {
	h := newHarness(t)
	h.gw.teardownErr = &core.NetworkError{Op: "teardown", Status: 502, Body: "bad gateway"}

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})
	require.True(t, h.mgr.Held())

	require.NoError(t, h.ctrl.Stop(context.Background()))

	assert.False(t, h.mgr.Held(), "no media device remains acquired")
	assert.Equal(t, 1, h.room.closed, "no transport connection remains open")
	assert.Equal(t, domain.StateIdle, h.ctrl.State())
	assert.Equal(t, 1, h.device.track.closed)

	var sawWarning bool
	for _, e := range h.log.Entries() {
		if e.Severity == status.SeverityWarning {
			sawWarning = true
		}
	}
	assert.True(t, sawWarning, "teardown failure is logged, not raised")
}

func TestStopFromIdleIsANoOp(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, domain.StateIdle, h.ctrl.State())
	_, _, teardowns := h.gw.counts()
	assert.Zero(t, teardowns)
}

func TestStopDuringConnectingHonoredOnConnect(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, domain.StateConnecting, h.ctrl.State())

	h.room.emit(core.ConnectedEvent{RoomName: "r"})

	assert.Equal(t, domain.StateIdle, h.ctrl.State())
	assert.Equal(t, 1, h.room.closed, "no orphaned room session")
	assert.Zero(t, h.device.acquired, "microphone never acquired for a stopped session")
	_, _, teardowns := h.gw.counts()
	assert.Equal(t, 1, teardowns)
}

func TestTrackSinksBalancedAtTeardown(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})

	h.room.emit(core.TrackSubscribedEvent{Track: remoteTrack("t1"), Identity: "interviewer"})
	h.room.emit(core.TrackSubscribedEvent{Track: remoteTrack("t2"), Identity: "observer"})
	h.room.emit(core.TrackUnsubscribedEvent{Track: remoteTrack("t1")})

	require.NoError(t, h.ctrl.Stop(context.Background()))

	attached, detached := h.mgr.Balance()
	assert.Equal(t, attached, detached, "every attach matched by a detach before teardown completes")
}

func TestCleanDisconnectEndsSessionNormally(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})
	h.room.emit(core.DisconnectedEvent{Reason: "room closed"})

	assert.Equal(t, domain.StateIdle, h.ctrl.State())
	assert.False(t, h.mgr.Held())
	_, _, teardowns := h.gw.counts()
	assert.Equal(t, 1, teardowns)

	// A clean remote disconnect is a normal end, not a failure.
	assert.NotContains(t, h.stateSeq(), domain.StateFailed)
	assert.Contains(t, h.stateSeq(), domain.StateDisconnected)
}

func TestErrorDisconnectAfterConnectedFails(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})
	h.room.emit(core.DisconnectedEvent{Reason: "ice failed", Err: errors.New("ice failed")})

	assert.Equal(t, domain.StateFailed, h.ctrl.State())
	assert.False(t, h.mgr.Held())
}

func TestAcknowledgeReturnsFailedToIdle(t *testing.T) {
	h := newHarness(t)
	h.gw.credErr = &core.NetworkError{Op: "credential", Status: 500, Body: "boom"}

	require.Error(t, h.ctrl.Start(context.Background()))
	require.Equal(t, domain.StateFailed, h.ctrl.State())

	h.ctrl.Acknowledge()
	assert.Equal(t, domain.StateIdle, h.ctrl.State())

	// Acknowledge from any other state does nothing.
	h.ctrl.Acknowledge()
	assert.Equal(t, domain.StateIdle, h.ctrl.State())
}

func TestStartFromFailedRequiresAcknowledge(t *testing.T) {
	h := newHarness(t)
	h.gw.credErr = &core.NetworkError{Op: "credential", Status: 500, Body: "boom"}

	require.Error(t, h.ctrl.Start(context.Background()))
	require.Equal(t, domain.StateFailed, h.ctrl.State())

	// The failure stays visible until acknowledged; no silent retry.
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, domain.StateFailed, h.ctrl.State())
	inits, creds, _ := h.gw.counts()
	assert.Equal(t, 1, inits, "start from failed issues no new requests")
	assert.Equal(t, 1, creds)

	h.ctrl.Acknowledge()
	h.gw.credErr = nil
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})
	assert.Equal(t, domain.StateConnected, h.ctrl.State())
}

func TestParticipantViewRebuiltOnJoinLeave(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})

	h.room.mu.Lock()
	h.room.participants = []string{"interviewer"}
	h.room.mu.Unlock()
	h.room.emit(core.ParticipantJoinedEvent{Identity: "interviewer"})
	assert.Equal(t, []string{"interviewer"}, h.ctrl.Participants())

	h.room.mu.Lock()
	h.room.participants = nil
	h.room.mu.Unlock()
	h.room.emit(core.ParticipantLeftEvent{Identity: "interviewer"})
	assert.Empty(t, h.ctrl.Participants())
}

func TestRestartAfterStopUsesFreshCredential(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.room.emit(core.ConnectedEvent{RoomName: "r"})
	require.NoError(t, h.ctrl.Stop(context.Background()))

	require.NoError(t, h.ctrl.Start(context.Background()))

	inits, creds, _ := h.gw.counts()
	assert.Equal(t, 2, inits)
	assert.Equal(t, 2, creds, "credential fetched once per session, never reused")
}
