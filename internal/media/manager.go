// Package media owns the local capture device and remote playback sinks
// for one session.
package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
	"github.com/prajwalbangera/interview-voice/internal/status"
)

// LocalAudio is the handle for the published microphone track. Held by
// the manager while the session is connected, released on every exit
// path.
type LocalAudio struct {
	Track       core.LocalTrack
	Publication core.TrackPublication
	Options     core.CaptureOptions
}

// Manager acquires and releases media resources. The session controller
// issues commands; it never touches the device directly.
type Manager struct {
	device core.CaptureDevice
	sink   core.PlaybackSink
	status *status.Log

	mu       sync.Mutex
	local    *LocalAudio
	sinks    map[string]core.SinkHandle
	attached int
	detached int
}

func NewManager(device core.CaptureDevice, sink core.PlaybackSink, statusLog *status.Log) *Manager {
	return &Manager{
		device: device,
		sink:   sink,
		status: statusLog,
		sinks:  make(map[string]core.SinkHandle),
	}
}

// AcquireAndPublish captures the microphone with the full processing
// chain enabled and publishes the track on conn. The caller decides
// whether a failure is fatal to the session.
func (m *Manager) AcquireAndPublish(ctx context.Context, conn core.RoomConnection) (*LocalAudio, error) {
	opts := core.DefaultCaptureOptions()

	track, err := m.device.Acquire(ctx, opts)
	if err != nil {
		m.status.Error("microphone acquisition failed: " + err.Error())
		return nil, err
	}

	pub, err := conn.PublishTrack(ctx, track)
	if err != nil {
		// Do not keep the device captured behind a failed publish.
		if cerr := track.Close(); cerr != nil {
			log.Error().Err(cerr).Str("module", "media").Msg("close track after publish failure")
		}
		m.status.Error("publish failed: " + err.Error())
		return nil, err
	}

	handle := &LocalAudio{Track: track, Publication: pub, Options: opts}
	m.mu.Lock()
	m.local = handle
	m.mu.Unlock()

	log.Info().Str("module", "media").Str("track_id", track.ID()).Msg("local audio published")
	m.status.Success("microphone published")
	return handle, nil
}

// OnRemoteTrackSubscribed attaches the track to a playback sink.
func (m *Manager) OnRemoteTrackSubscribed(track core.RemoteTrack, identity string) {
	h, err := m.sink.Attach(track)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Str("track_id", track.ID()).Msg("attach failed")
		m.status.Error("playback attach failed: " + err.Error())
		return
	}

	m.mu.Lock()
	m.sinks[track.ID()] = h
	m.attached++
	m.mu.Unlock()

	log.Info().Str("module", "media").Str("track_id", track.ID()).Str("identity", identity).Msg("remote track attached")
	m.status.Info("audio from " + identity)
}

// OnRemoteTrackUnsubscribed detaches the track and releases its sink.
// Unknown tracks are ignored.
func (m *Manager) OnRemoteTrackUnsubscribed(track core.RemoteTrack) {
	m.mu.Lock()
	h, ok := m.sinks[track.ID()]
	if ok {
		delete(m.sinks, track.ID())
		m.detached++
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := h.Close(); err != nil {
		log.Error().Err(err).Str("module", "media").Str("track_id", track.ID()).Msg("sink close")
	}
	log.Info().Str("module", "media").Str("track_id", track.ID()).Msg("remote track detached")
}

// DetachAll closes every remaining sink. Called during teardown so no
// playback element outlives the session.
func (m *Manager) DetachAll() {
	m.mu.Lock()
	remaining := m.sinks
	m.sinks = make(map[string]core.SinkHandle)
	m.detached += len(remaining)
	m.mu.Unlock()

	for id, h := range remaining {
		if err := h.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Str("track_id", id).Msg("sink close")
		}
	}
}

// Release stops capture, unpublishes and frees the device. No-op when
// nothing is held.
func (m *Manager) Release() {
	m.mu.Lock()
	handle := m.local
	m.local = nil
	m.mu.Unlock()
	if handle == nil {
		return
	}

	if handle.Publication != nil {
		if err := handle.Publication.Unpublish(); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("unpublish")
		}
	}
	if err := handle.Track.Close(); err != nil {
		log.Error().Err(err).Str("module", "media").Msg("close local track")
	}
	log.Info().Str("module", "media").Msg("local audio released")
}

// Held reports whether a local track is currently captured.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local != nil
}

// Balance returns attach and detach counts. Equal counts at session end
// mean no leaked playback sinks.
func (m *Manager) Balance() (attached, detached int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached, m.detached
}
