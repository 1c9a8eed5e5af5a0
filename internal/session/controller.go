// Package session drives the voice-interview lifecycle: credential
// acquisition, room join, media wiring and teardown.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
	"github.com/prajwalbangera/interview-voice/internal/domain"
	"github.com/prajwalbangera/interview-voice/internal/media"
	"github.com/prajwalbangera/interview-voice/internal/status"
)

// Config bounds the blocking steps of a session. Raw network calls may
// hang indefinitely otherwise; expiry transitions to failed, no retry.
type Config struct {
	DurationMinutes int
	RequestTimeout  time.Duration
	ConnectTimeout  time.Duration
}

// StateListener observes controller transitions. This is the UI binding
// surface; listeners must not block.
type StateListener func(domain.ConnectionState)

// Controller owns the authoritative connection state. All mutation goes
// through its transitions; nothing else writes the state.
type Controller struct {
	sess    *domain.Session
	gw      core.Gateway
	dial    func() core.RoomConnection
	media   *media.Manager
	status  *status.Log
	cfg     Config

	mu            sync.Mutex
	state         domain.ConnectionState
	conn          core.RoomConnection
	unsub         core.Unsubscribe
	participants  []string
	stopRequested bool
	listeners     []StateListener
}

// NewController wires a controller for one session. dial is invoked once
// per start attempt so a stopped session never reuses a dead transport.
func NewController(sess *domain.Session, gw core.Gateway, dial func() core.RoomConnection, mgr *media.Manager, statusLog *status.Log, cfg Config) *Controller {
	return &Controller{
		sess:   sess,
		gw:     gw,
		dial:   dial,
		media:  mgr,
		status: statusLog,
		cfg:    cfg,
		state:  domain.StateIdle,
	}
}

// OnStateChange registers a transition listener. Register before Start.
func (c *Controller) OnStateChange(fn StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current connection state.
func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Participants returns the current remote-participant view. Rebuilt from
// the room registry on every join/leave event, never mutated in place.
func (c *Controller) Participants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.participants)
}

// Start runs the connect sequence: initialize, fetch credential,
// register listeners, dial. Calling from any state but idle is a no-op,
// so rapid repeated triggering cannot open duplicate rooms and a failed
// session stays visible until Acknowledge clears it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateIdle {
		// A failed session must be acknowledged before the next attempt.
		st := c.state
		c.mu.Unlock()
		log.Info().Str("module", "session").Str("state", string(st)).Msg("start ignored, session not idle")
		return nil
	}
	c.state = domain.StateConnecting
	c.stopRequested = false
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	c.logTransition(domain.StateConnecting)
	notify(ls, domain.StateConnecting)

	c.status.Info("starting interview session " + c.sess.RefNum)

	initCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	err := c.gw.InitializeSession(initCtx, c.sess.RefNum, c.cfg.DurationMinutes)
	cancel()
	if err != nil {
		c.fail(err)
		return err
	}

	credCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	cred, err := c.gw.FetchCredential(credCtx, c.sess.RefNum, c.sess.ParticipantName, c.sess.RoomName)
	cancel()
	if err != nil {
		c.fail(err)
		return err
	}

	conn := c.dial()
	// Listeners go in before the connect attempt so no room event can
	// be missed in the gap.
	unsub := conn.Subscribe(c.handleEvent)
	c.mu.Lock()
	c.conn = conn
	c.unsub = unsub
	c.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	err = conn.Connect(connectCtx, cred.ServiceURL, cred.Token)
	cancel()
	if err != nil {
		c.fail(&core.TransportError{Stage: "connect", Err: err})
		return err
	}
	// The credential is consumed; it is never cached or reused.
	return nil
}

// Stop tears the session down from any state. Local cleanup always
// completes; a failed teardown notification is logged, never raised.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.StateIdle:
		c.mu.Unlock()
		return nil
	case domain.StateConnecting:
		// Honored once the connection settles: the connected event (or
		// the failure path) observes the flag and tears down.
		c.stopRequested = true
		c.mu.Unlock()
		log.Info().Str("module", "session").Msg("stop requested while connecting")
		return nil
	}
	c.mu.Unlock()

	c.setState(domain.StateDisconnected)
	c.cleanup()
	c.notifyTeardown(ctx)
	c.setState(domain.StateIdle)
	c.status.Info("session stopped")
	return nil
}

// Acknowledge dismisses a failed session, returning it to idle.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	if c.state != domain.StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = domain.StateIdle
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	c.logTransition(domain.StateIdle)
	notify(ls, domain.StateIdle)
}

// handleEvent is the single consumption point for room events. The
// adapter dispatches sequentially, so no two invocations overlap.
func (c *Controller) handleEvent(ev core.Event) {
	switch e := ev.(type) {
	case core.ConnectedEvent:
		c.onConnected(e)
	case core.ParticipantJoinedEvent:
		c.refreshParticipants()
		c.status.Info(e.Identity + " joined the room")
	case core.ParticipantLeftEvent:
		c.refreshParticipants()
		c.status.Info(e.Identity + " left the room")
	case core.TrackSubscribedEvent:
		c.media.OnRemoteTrackSubscribed(e.Track, e.Identity)
	case core.TrackUnsubscribedEvent:
		c.media.OnRemoteTrackUnsubscribed(e.Track)
	case core.DisconnectedEvent:
		c.onDisconnected(e)
	}
}

func (c *Controller) onConnected(e core.ConnectedEvent) {
	c.mu.Lock()
	if c.stopRequested {
		c.stopRequested = false
		c.mu.Unlock()
		log.Info().Str("module", "session").Msg("connected after stop request, tearing down")
		c.setState(domain.StateDisconnected)
		c.cleanup()
		c.notifyTeardown(context.Background())
		c.setState(domain.StateIdle)
		c.status.Info("session stopped")
		return
	}
	if c.state != domain.StateConnecting {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.state = domain.StateConnected
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	c.logTransition(domain.StateConnected)
	notify(ls, domain.StateConnected)

	c.status.Success("connected to room " + e.RoomName)
	c.refreshParticipants()

	// A voice interview cannot proceed without local audio, so a failed
	// microphone fails the whole session.
	pubCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	if _, err := c.media.AcquireAndPublish(pubCtx, conn); err != nil {
		c.fail(err)
	}
}

func (c *Controller) onDisconnected(e core.DisconnectedEvent) {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()

	switch st {
	case domain.StateConnecting:
		err := e.Err
		if err == nil {
			err = fmt.Errorf("connection dropped: %s", e.Reason)
		}
		c.fail(&core.TransportError{Stage: "connecting", Err: err})
	case domain.StateConnected:
		if e.Err != nil {
			c.fail(&core.TransportError{Stage: "connected", Err: e.Err})
			return
		}
		// A clean disconnect is a normal session end.
		c.setState(domain.StateDisconnected)
		c.cleanup()
		c.notifyTeardown(context.Background())
		c.setState(domain.StateIdle)
		c.status.Info("session ended: " + e.Reason)
	}
}

// fail releases any partially-acquired resources and surfaces the error.
func (c *Controller) fail(err error) {
	c.status.Error(err.Error())
	c.cleanup()
	c.setState(domain.StateFailed)
}

// cleanup frees everything the session holds. Safe to run repeatedly.
func (c *Controller) cleanup() {
	c.media.Release()
	c.media.DetachAll()

	c.mu.Lock()
	conn := c.conn
	unsub := c.unsub
	c.conn = nil
	c.unsub = nil
	c.participants = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("close connection")
		}
	}
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) notifyTeardown(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	if err := c.gw.TeardownSession(tctx, c.sess.RefNum); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("ref_num", c.sess.RefNum).Msg("teardown notification failed")
		c.status.Warning("backend teardown notification failed: " + err.Error())
	}
}

func (c *Controller) refreshParticipants() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	view := conn.Participants()
	c.mu.Lock()
	c.participants = view
	c.mu.Unlock()
}

func (c *Controller) setState(s domain.ConnectionState) {
	c.mu.Lock()
	c.state = s
	ls := slices.Clone(c.listeners)
	c.mu.Unlock()
	c.logTransition(s)
	notify(ls, s)
}

func (c *Controller) logTransition(s domain.ConnectionState) {
	log.Info().Str("module", "session").Str("ref_num", c.sess.RefNum).Str("state", string(s)).Msg("state transition")
}

func notify(ls []StateListener, s domain.ConnectionState) {
	for _, fn := range ls {
		fn(s)
	}
}
