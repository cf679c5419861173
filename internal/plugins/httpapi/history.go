package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("httpapi")

// HistoryClient loads the first page of a room's backlog.
type HistoryClient struct {
	api      *Client
	pageSize int
}

var _ contracts.HistoryFetcher = (*HistoryClient)(nil)

func NewHistoryClient(api *Client, pageSize int) *HistoryClient {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &HistoryClient{api: api, pageSize: pageSize}
}

// page accepts both a bare array and a paged {"content": [...]} envelope.
type page []domain.ChatMessage

func (p *page) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, (*[]domain.ChatMessage)(p))
	}
	var envelope struct {
		Content []domain.ChatMessage `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	*p = envelope.Content
	return nil
}

func (h *HistoryClient) FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "HistoryClient.FetchHistory", trace.WithAttributes(
		attribute.String("chat.room", roomID),
		attribute.Int("page.size", h.pageSize),
	))
	defer span.End()

	q := url.Values{}
	q.Set("size", strconv.Itoa(h.pageSize))
	q.Set("page", "0")
	endpoint := fmt.Sprintf("%s/api/v1/rooms/%s/messages?%s", h.api.baseURL, url.PathEscape(roomID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var body page
	if err := h.api.do(ctx, req, &body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch history failed")
		h.api.log.WarnContext(ctx, "httpapi - fetch history - failed", logging.Room(roomID), logging.Err(err))
		return nil, err
	}
	out := make([]domain.Message, 0, len(body))
	for _, m := range body {
		msg := m.ToMessage()
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		out = append(out, msg)
	}
	span.SetStatus(codes.Ok, "fetched")
	h.api.log.InfoContext(ctx, "httpapi - fetch history - success", logging.Room(roomID), "count", len(out))
	return out, nil
}
