package middleware

import (
	"livon-client/pkg/logging"
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger logs every outbound request with its outcome. A logger on
// the request context wins over log.
func RequestLogger(log *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			reqLog := logging.FromContext(r.Context(), log).With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("host", r.URL.Host),
			)
			start := time.Now()
			reqLog.DebugContext(r.Context(), "http - request - started")
			resp, err := next.RoundTrip(r)
			if err != nil {
				reqLog.WarnContext(r.Context(), "http - request - failed", logging.Err(err), slog.Duration("took", time.Since(start)))
				return nil, err
			}
			reqLog.InfoContext(r.Context(), "http - request - finished", slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
			return resp, nil
		})
	}
}
