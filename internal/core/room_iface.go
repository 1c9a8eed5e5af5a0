package core

import "context"

// RoomConnection abstracts the real-time room transport.
// Owned exclusively by the session controller; nobody else may Close it.
type RoomConnection interface {
	// Subscribe registers a handler for room events. Must be called
	// before Connect so no event can be missed; the returned func
	// removes the handler.
	Subscribe(EventHandler) Unsubscribe
	// Connect dials the room service and joins the room the token was
	// issued for. Returns once the transport is established; the
	// ConnectedEvent still fires through subscribed handlers.
	Connect(ctx context.Context, serviceURL, token string) error
	// PublishTrack attaches a local track to the room.
	PublishTrack(ctx context.Context, track LocalTrack) (TrackPublication, error)
	// Participants returns the identities currently in the room.
	Participants() []string
	// Close tears the transport down. Idempotent.
	Close() error
}

// TrackPublication is the handle for a published local track.
type TrackPublication interface {
	SID() string
	// Unpublish removes the track from the room without closing it.
	Unpublish() error
}
