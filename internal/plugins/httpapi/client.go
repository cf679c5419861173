package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"livon-client/internal/config"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"livon-client/pkg/middleware"
	"log/slog"
	"net/http"
	"strings"
)

// Client talks to the chat REST API. Every request carries the session's
// bearer token and the current trace context.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.APIConfig, service string, tokens middleware.TokenProvider) *Client {
	log = logging.OrDiscard(log)
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		log:     log,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: middleware.Chain(http.DefaultTransport,
				middleware.Tracer(service),
				middleware.RequestLogger(log),
				middleware.BearerAuth(tokens),
			),
		},
	}
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		if code, ok := domain.CodeOf(err); ok && code == domain.CodeAuthRejected {
			return err
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &body) != nil || (body.Message == "" && body.Error == "") {
			body.Message = strings.TrimSpace(string(raw))
		}
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		cause := fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return domain.WrapError(domain.CodeAuthRejected, "httpapi - request rejected", cause)
		}
		return cause
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.CodeMalformedPayload, "httpapi - decode "+req.URL.Path, err)
	}
	return nil
}
