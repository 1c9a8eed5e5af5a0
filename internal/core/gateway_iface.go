package core

import (
	"context"

	"github.com/prajwalbangera/interview-voice/internal/domain"
)

// Gateway wraps the remote backend's session-lifecycle endpoints.
// All calls carry the tenant's Organization header.
type Gateway interface {
	// InitializeSession tells the backend an interview is starting.
	InitializeSession(ctx context.Context, refNum string, durationMinutes int) error
	// FetchCredential obtains the one-shot join token for the room.
	FetchCredential(ctx context.Context, refNum, participantName, roomName string) (*domain.Credential, error)
	// TeardownSession notifies the backend the interview ended.
	// Best-effort; callers log failures and keep going.
	TeardownSession(ctx context.Context, refNum string) error
}
