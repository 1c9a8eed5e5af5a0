// Package room is the websocket + WebRTC client for the remote room
// service. It turns wire messages and peer-connection callbacks into the
// closed event set the session controller consumes.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
)

var (
	ErrNotConnected  = errors.New("room: not connected")
	ErrUnpublishable = errors.New("room: track is not publishable on this transport")
)

// MediaTrack is what a local track must expose to ride this transport.
// The capture adapter implements it.
type MediaTrack interface {
	core.LocalTrack
	Media() webrtc.TrackLocal
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Connection implements core.RoomConnection over a signaling websocket
// and a pion peer connection.
type Connection struct {
	cfg webrtc.Configuration

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	sig          *signalConn
	handlers     map[int]core.EventHandler
	nextHandler  int
	events       chan core.Event
	participants map[string]struct{}
	tracks       map[string]*remoteTrack
	roomName     string
	connected    bool
	closed       bool
	cancel       context.CancelFunc
}

func NewConnection(cfg webrtc.Configuration) *Connection {
	return &Connection{
		cfg:          cfg,
		handlers:     make(map[int]core.EventHandler),
		events:       make(chan core.Event, 32),
		participants: make(map[string]struct{}),
		tracks:       make(map[string]*remoteTrack),
	}
}

// Subscribe registers a handler. Handlers run on the dispatch goroutine
// in registration order, so nothing registered before Connect can miss
// an event.
func (c *Connection) Subscribe(h core.EventHandler) core.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Connect dials the signaling endpoint and joins the room the token was
// issued for. The ConnectedEvent fires once the service acks the join.
func (c *Connection) Connect(ctx context.Context, serviceURL, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("room: connection already closed")
	}
	if c.sig != nil {
		c.mu.Unlock()
		return errors.New("room: already connected")
	}
	c.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(c.cfg)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	sig, err := dialSignal(ctx, serviceURL, token)
	if err != nil {
		_ = pc.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.pc = pc
	c.sig = sig
	c.cancel = cancel
	c.mu.Unlock()

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			sig.sendCandidate(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "room").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		rt := &remoteTrack{src: track}
		c.mu.Lock()
		c.tracks[track.ID()] = rt
		c.mu.Unlock()
		c.push(core.TrackSubscribedEvent{Track: rt, Identity: track.StreamID()})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "room").Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.push(core.DisconnectedEvent{Reason: "peer connection failed", Err: errors.New("peer connection failed")})
		}
	})

	go c.dispatch(runCtx)
	go sig.writePump(runCtx)
	go c.readLoop(runCtx)

	if err := sig.sendJoin(); err != nil {
		c.Close()
		return fmt.Errorf("join: %w", err)
	}
	return nil
}

// PublishTrack adds a local track to the peer connection and
// renegotiates.
func (c *Connection) PublishTrack(ctx context.Context, track core.LocalTrack) (core.TrackPublication, error) {
	mt, ok := track.(MediaTrack)
	if !ok {
		return nil, ErrUnpublishable
	}

	c.mu.Lock()
	pc := c.pc
	sig := c.sig
	c.mu.Unlock()
	if pc == nil || sig == nil {
		return nil, ErrNotConnected
	}

	sender, err := pc.AddTrack(mt.Media())
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	if err := c.negotiate(ctx, pc, sig); err != nil {
		_ = pc.RemoveTrack(sender)
		return nil, err
	}

	log.Info().Str("module", "room").Str("track_id", track.ID()).Msg("local track published")
	return &publication{sid: track.ID(), pc: pc, sender: sender}, nil
}

// negotiate runs one offer/answer exchange over the signaling channel.
func (c *Connection) negotiate(ctx context.Context, pc *webrtc.PeerConnection, sig *signalConn) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := sig.sendOffer(pc.LocalDescription().SDP); err != nil {
		return err
	}

	select {
	case answer := <-sig.answers:
		return pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  answer,
		})
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Participants returns the identities currently in the room.
func (c *Connection) Participants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.participants))
	for id := range c.participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close tears down the transport. Idempotent; no event is emitted for a
// locally initiated close.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	sig := c.sig
	cancel := c.cancel
	c.mu.Unlock()

	if sig != nil {
		sig.sendBye()
		sig.close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "room").Msg("peer connection close")
		}
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "room").Str("room", c.roomName).Msg("connection closed")
	return nil
}

// push queues an event for the dispatch goroutine. Dropped only when the
// connection is already closed.
func (c *Connection) push(ev core.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "room").Msg("event queue full, dropping")
	}
}

// dispatch delivers queued events to handlers one at a time, preserving
// room order.
func (c *Connection) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			for _, h := range c.handlerSnapshot() {
				h(ev)
			}
		}
	}
}

func (c *Connection) handlerSnapshot() []core.EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]core.EventHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.handlers[id])
	}
	return out
}

// remoteTrack adapts a pion TrackRemote to core.RemoteTrack. The
// playback sink reaches the source through Remote.
type remoteTrack struct {
	src *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string                  { return t.src.ID() }
func (t *remoteTrack) Kind() string                { return t.src.Kind().String() }
func (t *remoteTrack) Remote() *webrtc.TrackRemote { return t.src }

type publication struct {
	sid    string
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
}

func (p *publication) SID() string { return p.sid }

func (p *publication) Unpublish() error {
	return p.pc.RemoveTrack(p.sender)
}
