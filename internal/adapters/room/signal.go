package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
)

var ErrBackpressure = errors.New("room: signal backpressure")

const writeDeadline = 5 * time.Second

// signalConn is the websocket side of the transport. Outbound frames go
// through a buffered send channel drained by writePump.
type signalConn struct {
	conn    *websocket.Conn
	send    chan []byte
	answers chan string

	mu     sync.Mutex
	closed bool
}

func dialSignal(ctx context.Context, serviceURL, token string) (*signalConn, error) {
	endpoint := strings.TrimRight(serviceURL, "/") + "/rtc?access_token=" + url.QueryEscape(token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signal: %w", err)
	}
	log.Info().Str("module", "room.signal").Str("url", serviceURL).Msg("signal connected")
	return &signalConn{
		conn:    ws,
		send:    make(chan []byte, 32),
		answers: make(chan string, 1),
	}, nil
}

func (s *signalConn) trySend(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("room: signal closed")
	}
	select {
	case s.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *signalConn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.trySend(b)
}

func (s *signalConn) sendJoin() error {
	return s.sendJSON(map[string]string{"type": "join"})
}

func (s *signalConn) sendOffer(sdp string) error {
	return s.sendJSON(map[string]string{"type": "offer", "sdp": sdp})
}

func (s *signalConn) sendAnswer(sdp string) error {
	return s.sendJSON(map[string]string{"type": "answer", "sdp": sdp})
}

func (s *signalConn) sendBye() {
	_ = s.sendJSON(map[string]string{"type": "bye"})
}

func (s *signalConn) sendCandidate(ci webrtc.ICECandidateInit) {
	msg := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	if err := s.sendJSON(msg); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("send candidate")
	}
}

func (s *signalConn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "room.signal").Msg("set write deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "room.signal").Msg("write")
				return
			}
		}
	}
}

func (s *signalConn) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.conn.Close()
}

// readLoop consumes signal messages until the socket dies. A read error
// on a live connection surfaces as a DisconnectedEvent.
func (c *Connection) readLoop(ctx context.Context) {
	sig := c.sig
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := sig.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Error().Err(err).Str("module", "room.signal").Msg("read")
				c.push(core.DisconnectedEvent{Reason: "signal read failed", Err: err})
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Connection) handleMessage(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "room_state":
		c.handleRoomState(data)
	case "member_joined":
		c.handleMemberJoined(data)
	case "member_left":
		c.handleMemberLeft(data)
	case "offer":
		c.handleOffer(data)
	case "answer":
		c.handleAnswer(data)
	case "candidate":
		c.handleCandidate(data)
	case "track_removed":
		c.handleTrackRemoved(data)
	case "bye":
		c.handleBye(data)
	case "pong":
	default:
		log.Warn().Str("module", "room.signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *Connection) handleRoomState(data []byte) {
	var p struct {
		Type    string `json:"type"`
		Room    string `json:"room"`
		Members []struct {
			Identity string `json:"identity"`
		} `json:"members"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad room_state payload")
		return
	}

	c.mu.Lock()
	c.roomName = p.Room
	c.participants = make(map[string]struct{}, len(p.Members))
	for _, m := range p.Members {
		c.participants[m.Identity] = struct{}{}
	}
	already := c.connected
	c.connected = true
	c.mu.Unlock()

	if !already {
		c.push(core.ConnectedEvent{RoomName: p.Room})
	}
}

func (c *Connection) handleMemberJoined(data []byte) {
	var p struct {
		Type string `json:"type"`
		User struct {
			Identity string `json:"identity"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad member_joined payload")
		return
	}
	c.mu.Lock()
	c.participants[p.User.Identity] = struct{}{}
	c.mu.Unlock()
	c.push(core.ParticipantJoinedEvent{Identity: p.User.Identity})
}

func (c *Connection) handleMemberLeft(data []byte) {
	var p struct {
		Type string `json:"type"`
		User struct {
			Identity string `json:"identity"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad member_left payload")
		return
	}

	c.mu.Lock()
	delete(c.participants, p.User.Identity)
	var gone []*remoteTrack
	for id, rt := range c.tracks {
		if rt.src.StreamID() == p.User.Identity {
			gone = append(gone, rt)
			delete(c.tracks, id)
		}
	}
	c.mu.Unlock()

	// The service does not re-announce tracks of a departed member.
	for _, rt := range gone {
		c.push(core.TrackUnsubscribedEvent{Track: rt})
	}
	c.push(core.ParticipantLeftEvent{Identity: p.User.Identity})
}

// handleOffer answers a service-initiated renegotiation, typically after
// another participant published a track.
func (c *Connection) handleOffer(data []byte) {
	var p struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad offer payload")
		return
	}

	c.mu.Lock()
	pc := c.pc
	sig := c.sig
	c.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("set remote offer")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("create answer")
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("set local answer")
		return
	}
	<-gatherComplete
	if err := sig.sendAnswer(pc.LocalDescription().SDP); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("send answer")
	}
}

func (c *Connection) handleAnswer(data []byte) {
	var p struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad answer payload")
		return
	}
	select {
	case c.sig.answers <- p.SDP:
	default:
		log.Warn().Str("module", "room.signal").Msg("unexpected answer dropped")
	}
}

func (c *Connection) handleCandidate(data []byte) {
	var p struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad candidate payload")
		return
	}

	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}

	cand := webrtc.ICECandidateInit{Candidate: p.Candidate}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex
	if err := pc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("add ice candidate")
	}
}

func (c *Connection) handleTrackRemoved(data []byte) {
	var p struct {
		Type    string `json:"type"`
		TrackID string `json:"track_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad track_removed payload")
		return
	}

	c.mu.Lock()
	rt, ok := c.tracks[p.TrackID]
	if ok {
		delete(c.tracks, p.TrackID)
	}
	c.mu.Unlock()
	if ok {
		c.push(core.TrackUnsubscribedEvent{Track: rt})
	}
}

func (c *Connection) handleBye(data []byte) {
	var p struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "room.signal").Msg("bad bye payload")
		return
	}

	var cause error
	if p.Error != "" {
		cause = errors.New(p.Error)
	}
	reason := p.Reason
	if reason == "" {
		reason = "closed by service"
	}
	c.push(core.DisconnectedEvent{Reason: reason, Err: cause})
}
