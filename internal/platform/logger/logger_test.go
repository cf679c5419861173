package logger

import (
	"bytes"
	"encoding/json"
	"livon-client/internal/config"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONCarriesServiceAttributes(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cfg := config.Config{
		Service: config.ServiceConfig{Name: "livon-client", Env: "test"},
		Logger:  config.LoggerConfig{Level: "debug", Format: "json"},
	}
	log := newLogger(&buf, cfg)
	log.Debug("connection - connect - success")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "livon-client", rec["service"])
	assert.Equal(t, "test", rec["env"])
	assert.Equal(t, "connection - connect - success", rec["msg"])
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log := newLogger(&buf, config.Config{Logger: config.LoggerConfig{Level: "warn"}})
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
