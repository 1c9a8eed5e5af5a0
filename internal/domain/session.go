// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"fmt"
)

const MaxRefNumLen = 64

var (
	ErrRefNumEmpty   = errors.New("reference number empty")
	ErrRefNumTooLong = errors.New("reference number too long")
)

// ConnectionState is owned exclusively by the session controller.
// Transitions are the only permitted mutation path.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// Session identifies one voice-interview attempt. At most one active
// room connection exists per session.
type Session struct {
	RefNum          string
	OrgID           string
	RoomName        string
	ParticipantName string
}

// NewSession derives the room name from the reference number so that
// every component addressing this interview lands in the same room.
func NewSession(refNum, orgID, participantName string) (*Session, error) {
	if len(refNum) == 0 {
		return nil, ErrRefNumEmpty
	}
	if len(refNum) > MaxRefNumLen {
		return nil, ErrRefNumTooLong
	}
	return &Session{
		RefNum:          refNum,
		OrgID:           orgID,
		RoomName:        RoomNameFor(refNum),
		ParticipantName: participantName,
	}, nil
}

// RoomNameFor is the deterministic ref -> room mapping shared with the
// backend.
func RoomNameFor(refNum string) string {
	return fmt.Sprintf("interview_%s", refNum)
}

// Credential is a short-lived join token plus service URL, obtained once
// per session and used exactly once to open a connection. Never cached,
// never reused across sessions.
type Credential struct {
	Token           string
	ServiceURL      string
	RoomName        string
	ParticipantName string
}
