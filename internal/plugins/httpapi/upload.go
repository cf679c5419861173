package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UploadClient stores attachment bytes through the REST API.
type UploadClient struct {
	api *Client
}

var _ contracts.Uploader = (*UploadClient)(nil)

func NewUploadClient(api *Client) *UploadClient {
	return &UploadClient{api: api}
}

func (u *UploadClient) Upload(ctx context.Context, roomID string, file domain.File) (domain.Attachment, error) {
	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Data)
	}
	ctx, span := tracer.Start(ctx, "UploadClient.Upload", trace.WithAttributes(
		attribute.String("chat.room", roomID),
		attribute.String("file.content_type", contentType),
		attribute.Int("file.size", len(file.Data)),
	))
	defer span.End()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name)},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return domain.Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.Attachment{}, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/rooms/%s/files", u.api.baseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return domain.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var att domain.Attachment
	if err := u.api.do(ctx, req, &att); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		u.api.log.WarnContext(ctx, "httpapi - upload - failed", logging.Room(roomID), "file", file.Name, logging.Err(err))
		return domain.Attachment{}, err
	}
	if att.Type == "" {
		att.Type = AttachmentTypeOf(contentType)
	}
	if att.Name == "" {
		att.Name = file.Name
	}
	if att.Size == 0 {
		att.Size = int64(len(file.Data))
	}
	span.SetStatus(codes.Ok, "uploaded")
	u.api.log.InfoContext(ctx, "httpapi - upload - success", logging.Room(roomID), "attachment_id", att.ID, "size", att.HumanSize())
	return att, nil
}

// AttachmentTypeOf maps a MIME type onto an attachment kind.
func AttachmentTypeOf(contentType string) domain.AttachmentType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.AttachmentVideo
	case strings.HasPrefix(contentType, "audio/"):
		return domain.AttachmentAudio
	default:
		return domain.AttachmentDocument
	}
}
