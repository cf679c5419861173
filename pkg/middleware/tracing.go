package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer opens a client span per request and injects the trace context into
// the outgoing headers.
func Tracer(app string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			tracer := otel.Tracer(app)
			ctx, span := tracer.Start(r.Context(),
				r.Method+" "+r.URL.Path,
				trace.WithAttributes(
					semconv.ServiceName(app),
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLFull(r.URL.String()),
				),
				trace.WithSpanKind(trace.SpanKindClient),
			)
			defer span.End()

			r = r.Clone(ctx)
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))
			resp, err := next.RoundTrip(r)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "request failed")
				return nil, err
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
			if resp.StatusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
			}
			return resp, nil
		})
	}
}
