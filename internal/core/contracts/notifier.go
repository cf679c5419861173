package contracts

import (
	"context"
	"livon-client/internal/core/domain"
)

// Notifier is the presentation-facing sink. Implementations must not block
// for long; they run on the session loop.
type Notifier interface {
	Notify(ctx context.Context, evt domain.Event)
}

// PresenceStore mirrors the latest presence snapshot outside the process.
type PresenceStore interface {
	ReplaceOnline(ctx context.Context, roomID string, users []string) error
	GetOnline(ctx context.Context, roomID string) ([]string, error)
	ClearRoom(ctx context.Context, roomID string) error
}
