package telemetry

import (
	"context"
	"livon-client/internal/config"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetryWithoutCollector(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTelemetry(context.Background(), config.Config{
		Service: config.ServiceConfig{Name: "livon-client", Env: "test"},
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}
