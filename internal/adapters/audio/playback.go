package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
)

var ErrNotDrainable = errors.New("audio: remote track exposes no RTP source")

// rtpSource is implemented by the room adapter's remote track.
type rtpSource interface {
	Remote() *webrtc.TrackRemote
}

// Sink drains subscribed tracks into per-track files under Dir. An empty
// Dir discards the audio but still exercises the full attach/detach
// lifecycle.
type Sink struct {
	Dir string
}

func NewSink(dir string) *Sink {
	return &Sink{Dir: dir}
}

func (s *Sink) Attach(track core.RemoteTrack) (core.SinkHandle, error) {
	src, ok := track.(rtpSource)
	if !ok {
		return nil, ErrNotDrainable
	}

	var w io.WriteCloser
	if s.Dir == "" {
		w = nopWriteCloser{io.Discard}
	} else {
		f, err := os.Create(filepath.Join(s.Dir, track.ID()+".opus.raw"))
		if err != nil {
			return nil, err
		}
		w = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &sinkHandle{trackID: track.ID(), out: w, cancel: cancel}
	go h.drain(ctx, src.Remote())

	log.Info().Str("module", "audio").Str("track_id", track.ID()).Msg("playback attached")
	return h, nil
}

type sinkHandle struct {
	trackID string
	out     io.WriteCloser
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (h *sinkHandle) TrackID() string { return h.trackID }

// Close stops the drain and releases the output. Idempotent.
func (h *sinkHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	err := h.out.Close()
	log.Info().Str("module", "audio").Str("track_id", h.trackID).Msg("playback detached")
	return err
}

// drain reads RTP from the remote track and writes length-prefixed
// payloads until the track ends or the sink closes.
func (h *sinkHandle) drain(ctx context.Context, src *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Str("module", "audio").Str("track_id", h.trackID).Msg("read rtp")
			}
			return
		}
		if err := writePayload(h.out, pkt); err != nil {
			log.Error().Err(err).Str("module", "audio").Str("track_id", h.trackID).Msg("write payload")
			return
		}
	}
}

func writePayload(w io.Writer, pkt *rtp.Packet) error {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(pkt.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(pkt.Payload)
	return err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
