package services

import (
	"context"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator uploads a file out of band, then sends a message referencing it.
type Coordinator struct {
	log       *slog.Logger
	roomID    string
	uploader  contracts.Uploader
	sequencer *Sequencer
}

func NewCoordinator(log *slog.Logger, roomID string, uploader contracts.Uploader, sequencer *Sequencer) *Coordinator {
	return &Coordinator{
		log:       logging.OrDiscard(log),
		roomID:    roomID,
		uploader:  uploader,
		sequencer: sequencer,
	}
}

// SendAttachment uploads file and sends caption with the returned reference.
// If the send fails after a successful upload the upload is left orphaned.
func (c *Coordinator) SendAttachment(ctx context.Context, file domain.File, caption string) (domain.Message, error) {
	if len(file.Data) == 0 {
		return domain.Message{}, domain.ErrEmpty
	}
	ctx, span := tracer.Start(ctx, "Coordinator.SendAttachment", trace.WithAttributes(
		attribute.String("chat.room", c.roomID),
		attribute.String("file.name", file.Name),
		attribute.Int("file.size", len(file.Data)),
	))
	defer span.End()

	att, err := c.uploader.Upload(ctx, c.roomID, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		c.log.WarnContext(ctx, "attachment - send - upload failed", "file", file.Name, logging.Err(err))
		return domain.Message{}, domain.WrapError(domain.CodeUploadFailed, "upload "+file.Name, err)
	}
	if ctx.Err() != nil {
		// session closed while uploading
		return domain.Message{}, domain.WrapError(domain.CodeSessionClosed, "attachment - send", ctx.Err())
	}
	msg, err := c.sequencer.SendWithAttachment(ctx, caption, att)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send after upload failed")
		c.log.WarnContext(ctx, "attachment - send - send after upload failed", "attachment_id", att.ID, logging.Err(err))
		return domain.Message{}, domain.WrapError(domain.CodeSendAfterUploadFailed, "send attachment "+att.ID, err)
	}
	span.SetStatus(codes.Ok, "sent")
	c.log.InfoContext(ctx, "attachment - send - success", "attachment_id", att.ID, "size", att.HumanSize())
	return msg, nil
}
