// Package audio provides the capture device and playback sink backing
// the media manager.
package audio

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
)

const (
	frameDuration = 20 * time.Millisecond
	// 48 kHz mono s16le, 20 ms per frame.
	frameBytes = 48000 * 2 * 20 / 1000
)

// Device captures audio from a PCM source file and exposes it as a
// publishable track. A missing or unreadable source is reported as the
// microphone being unavailable.
type Device struct {
	SourcePath string
}

func NewDevice(sourcePath string) *Device {
	return &Device{SourcePath: sourcePath}
}

func (d *Device) Acquire(ctx context.Context, opts core.CaptureOptions) (core.LocalTrack, error) {
	f, err := os.Open(d.SourcePath)
	if err != nil {
		return nil, &core.DeviceError{Reason: "microphone unavailable", Err: err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"mic-"+uuid.NewString(),
		"microphone",
	)
	if err != nil {
		_ = f.Close()
		return nil, &core.DeviceError{Reason: "track creation failed", Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ct := &captureTrack{
		track:  track,
		source: f,
		opts:   opts,
		cancel: cancel,
	}
	go ct.pump(runCtx)

	log.Info().
		Str("module", "audio").
		Str("track_id", track.ID()).
		Bool("echo_cancellation", opts.EchoCancellation).
		Bool("noise_suppression", opts.NoiseSuppression).
		Bool("auto_gain_control", opts.AutoGainControl).
		Msg("capture started")
	return ct, nil
}

// captureTrack owns the source file and the pump goroutine.
type captureTrack struct {
	track  *webrtc.TrackLocalStaticSample
	source *os.File
	opts   core.CaptureOptions
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (t *captureTrack) ID() string               { return t.track.ID() }
func (t *captureTrack) Kind() string             { return t.track.Kind().String() }
func (t *captureTrack) Media() webrtc.TrackLocal { return t.track }

// Close stops the pump and frees the source. Idempotent.
func (t *captureTrack) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	err := t.source.Close()
	log.Info().Str("module", "audio").Str("track_id", t.track.ID()).Msg("capture stopped")
	return err
}

// pump feeds 20 ms frames into the track, looping the source so capture
// keeps flowing for the whole session.
func (t *captureTrack) pump(ctx context.Context) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	buf := make([]byte, frameBytes)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(t.source, buf)
		if err != nil {
			if _, serr := t.source.Seek(0, io.SeekStart); serr != nil {
				log.Error().Err(serr).Str("module", "audio").Msg("rewind source")
				return
			}
			if n == 0 {
				continue
			}
		}
		if werr := t.track.WriteSample(media.Sample{Data: buf[:n], Duration: frameDuration}); werr != nil {
			log.Error().Err(werr).Str("module", "audio").Msg("write sample")
			return
		}
	}
}
