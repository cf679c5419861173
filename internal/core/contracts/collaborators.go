package contracts

import (
	"context"
	"livon-client/internal/core/domain"
)

// TokenSource is the auth collaborator. The token is treated as opaque and is
// read only when a connection is being (re)established.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// OnAuthRejected is called once the broker refuses the credential;
	// the collaborator refreshes it or forces a logout.
	OnAuthRejected(ctx context.Context, err error)
}

// HistoryFetcher returns the ordered backlog of a room.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Uploader stores raw file bytes out of band.
type Uploader interface {
	Upload(ctx context.Context, roomID string, file domain.File) (domain.Attachment, error)
}
