package logger

import (
	"context"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
)

// ForRoom scopes log to a room session and stores it on ctx.
func ForRoom(ctx context.Context, log *slog.Logger, roomID string, user domain.Identity) (context.Context, *slog.Logger) {
	scoped := log.With(logging.Room(roomID), logging.Sender(user.UserID))
	return logging.WithContext(ctx, scoped), scoped
}
