package reconnect_test

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"livon-client/internal/app/connection"
	"livon-client/internal/app/reconnect"
	"livon-client/internal/app/registry"
	"livon-client/internal/config"
	"livon-client/internal/core/contracts/contractstest"
	"livon-client/internal/core/domain"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dialer     *contractstest.Dialer
	tokens     *contractstest.Tokens
	manager    *connection.Manager
	registry   *registry.Registry
	controller *reconnect.Controller
}

func newFixture(t *testing.T, opts reconnect.Options) *fixture {
	t.Helper()
	f := &fixture{dialer: &contractstest.Dialer{}, tokens: contractstest.NewTokens("secret")}
	f.manager = connection.NewManager(nil, "ws://broker.test/chat", f.dialer, f.tokens)
	f.registry = registry.NewRegistry(nil, contractstest.NopHandler{})
	f.controller = reconnect.NewController(nil, f.manager, f.registry, f.tokens, "r1", opts)
	t.Cleanup(func() {
		f.controller.Stop()
		_ = f.manager.Disconnect()
		f.manager.Close()
	})
	return f
}

func fast() reconnect.Options {
	return reconnect.Options{Strategy: config.StrategyFixed, Delay: 10 * time.Millisecond}
}

func TestController_ReconnectResubscribesOnce(t *testing.T) {
	f := newFixture(t, fast())
	require.NoError(t, f.manager.Connect(context.Background()))
	first := f.dialer.LastConn()
	require.Len(t, first.Destinations(), 6)

	first.Kill(errors.New("network down"))

	require.Eventually(t, func() bool {
		return f.dialer.DialCount() == 2 && f.manager.State() == domain.StateConnected
	}, time.Second, 5*time.Millisecond)

	second := f.dialer.LastConn()
	dests := second.Destinations()
	sort.Strings(dests)
	assert.Equal(t, []string{
		"/topic/room/r1",
		"/topic/room/r1/receipts",
		"/topic/room/r1/status",
		"/topic/room/r1/typing",
		"/topic/room/r1/users",
		"/user/queue/errors",
	}, dests)
	assert.Zero(t, f.controller.Attempts())
	assert.Zero(t, f.tokens.RejectedCount())
}

func TestController_AuthRejectedIsTerminal(t *testing.T) {
	f := newFixture(t, fast())
	var authFailed atomic.Int32
	f.controller.OnAuthFailed(func(err error) {
		assert.ErrorIs(t, err, domain.ErrAuthRejected)
		authFailed.Add(1)
	})
	require.NoError(t, f.manager.Connect(context.Background()))

	f.dialer.LastConn().Kill(domain.WrapError(domain.CodeAuthRejected, "token expired", nil))

	require.Eventually(t, func() bool { return authFailed.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.dialer.DialCount())
	assert.Equal(t, 1, f.tokens.RejectedCount())
	assert.Equal(t, domain.StateFailed, f.manager.State())
}

func TestController_RetriesUntilBrokerReturns(t *testing.T) {
	f := newFixture(t, fast())
	f.dialer.Queue(
		contractstest.DialResult{Err: errors.New("refused")},
		contractstest.DialResult{Err: errors.New("refused")},
	)

	require.Error(t, f.manager.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return f.manager.State() == domain.StateConnected
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, f.dialer.DialCount())
	assert.Len(t, f.dialer.LastConn().Destinations(), 6)
}

func TestController_SendWhileReconnectingFailsFast(t *testing.T) {
	f := newFixture(t, reconnect.Options{Strategy: config.StrategyFixed, Delay: time.Hour})
	require.NoError(t, f.manager.Connect(context.Background()))

	f.dialer.LastConn().Kill(errors.New("lost"))

	require.Eventually(t, func() bool { return f.manager.State() == domain.StateReconnecting }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, f.manager.Send("/app/sendMessage/r1", []byte(`{}`)), domain.ErrNotConnected)
	assert.Equal(t, 1, f.controller.Attempts())
}

func TestController_GivesUpAfterMaxAttempts(t *testing.T) {
	opts := fast()
	opts.MaxAttempts = 2
	f := newFixture(t, opts)
	var gaveUp atomic.Bool
	f.controller.OnGiveUp(func(error) { gaveUp.Store(true) })
	f.dialer.Queue(
		contractstest.DialResult{Err: errors.New("refused")},
		contractstest.DialResult{Err: errors.New("refused")},
		contractstest.DialResult{Err: errors.New("refused")},
	)

	require.Error(t, f.manager.Connect(context.Background()))

	require.Eventually(t, gaveUp.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, f.dialer.DialCount())
	assert.Equal(t, domain.StateDisconnected, f.manager.State(), "giving up settles on Disconnected")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, f.dialer.DialCount(), "no retry after giving up")
}

func TestController_StopCancelsPendingRetry(t *testing.T) {
	f := newFixture(t, reconnect.Options{Strategy: config.StrategyFixed, Delay: 50 * time.Millisecond})
	require.NoError(t, f.manager.Connect(context.Background()))
	f.dialer.LastConn().Kill(errors.New("lost"))
	require.Eventually(t, func() bool { return f.manager.State() == domain.StateReconnecting }, time.Second, 5*time.Millisecond)

	f.controller.Stop()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, f.dialer.DialCount())
}

func TestOptions_NewBackOff(t *testing.T) {
	fixed := reconnect.Options{Strategy: config.StrategyFixed, Delay: 3 * time.Second}.NewBackOff()
	for range 3 {
		assert.Equal(t, 3*time.Second, fixed.NextBackOff())
	}

	exp := reconnect.Options{Strategy: config.StrategyExponential, Delay: time.Second, MaxDelay: 4 * time.Second}.NewBackOff()
	require.IsType(t, &backoff.ExponentialBackOff{}, exp)
	for range 10 {
		d := exp.NextBackOff()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 6*time.Second) // max interval plus jitter
	}
}
