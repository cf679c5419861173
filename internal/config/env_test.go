package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "livon-client", cfg.Service.Name)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, StrategyFixed, cfg.Reconnect.Strategy)
	assert.Equal(t, 3*time.Second, cfg.Typing.Quiet)
	assert.Equal(t, 3*time.Second, cfg.Typing.Expiry)
	assert.Equal(t, 50, cfg.API.HistoryPageSize)
	assert.True(t, cfg.Session.OptimisticEcho)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECONNECT_STRATEGY", " Exponential ")
	t.Setenv("RECONNECT_DELAY", "500ms")
	t.Setenv("CHAT_ROOM", "general")
	t.Setenv("OPTIMISTIC_ECHO", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StrategyExponential, cfg.Reconnect.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.Delay)
	assert.Equal(t, "general", cfg.Session.Room)
	assert.False(t, cfg.Session.OptimisticEcho)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "bad duration", key: "RECONNECT_DELAY", val: "soon", want: "parse env:"},
		{name: "unknown strategy", key: "RECONNECT_STRATEGY", val: "jittery", want: "unknown reconnect strategy"},
		{name: "zero typing window", key: "TYPING_QUIET", val: "0s", want: "typing windows"},
		{name: "zero page size", key: "HISTORY_PAGE_SIZE", val: "0", want: "page size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
