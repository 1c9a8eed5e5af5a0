package core

// Event is the closed set of room-service notifications a session
// consumes. Handlers switch on the concrete variant; payload shapes are
// fixed per variant.
type Event interface {
	isEvent()
}

// ConnectedEvent fires once the transport reaches the room.
type ConnectedEvent struct {
	RoomName string
}

// ParticipantJoinedEvent fires when a remote identity enters the room.
type ParticipantJoinedEvent struct {
	Identity string
}

// ParticipantLeftEvent fires when a remote identity leaves the room.
type ParticipantLeftEvent struct {
	Identity string
}

// TrackSubscribedEvent fires when a remote media track becomes readable.
type TrackSubscribedEvent struct {
	Track    RemoteTrack
	Identity string
}

// TrackUnsubscribedEvent fires when a previously subscribed track ends.
type TrackUnsubscribedEvent struct {
	Track RemoteTrack
}

// DisconnectedEvent fires when the transport drops. Err is nil for a
// normal session end and non-nil when the service reported a failure.
type DisconnectedEvent struct {
	Reason string
	Err    error
}

func (ConnectedEvent) isEvent()         {}
func (ParticipantJoinedEvent) isEvent() {}
func (ParticipantLeftEvent) isEvent()   {}
func (TrackSubscribedEvent) isEvent()   {}
func (TrackUnsubscribedEvent) isEvent() {}
func (DisconnectedEvent) isEvent()      {}

// EventHandler consumes one event. Adapters deliver events sequentially
// from a single dispatch goroutine so handlers observe room order.
type EventHandler func(Event)

// Unsubscribe removes a previously registered handler. Safe to call
// more than once.
type Unsubscribe func()
