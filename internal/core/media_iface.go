package core

import "context"

// CaptureOptions are the processing flags requested from the capture
// device.
type CaptureOptions struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultCaptureOptions enables the full processing chain; a voice
// interview is unusable without it.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// CaptureDevice acquires the local microphone. Exclusively owned by the
// media manager while a track is held.
type CaptureDevice interface {
	Acquire(ctx context.Context, opts CaptureOptions) (LocalTrack, error)
}

// LocalTrack is a capture-side media stream that can be published.
type LocalTrack interface {
	ID() string
	Kind() string
	// Close stops capture and frees the device. Idempotent.
	Close() error
}

// RemoteTrack is a subscribed media stream readable from the room.
type RemoteTrack interface {
	ID() string
	Kind() string
}

// PlaybackSink turns remote tracks into audible output. Every Attach
// must be matched by exactly one SinkHandle.Close before teardown
// completes.
type PlaybackSink interface {
	Attach(track RemoteTrack) (SinkHandle, error)
}

// SinkHandle is one attached playback element.
type SinkHandle interface {
	TrackID() string
	Close() error
}
