package connection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livon-client/internal/app/connection"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/contracts/contractstest"
	"livon-client/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.StateEvent
}

func (r *recorder) record(evt domain.StateEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) states() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConnectionState, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.New)
	}
	return out
}

func (r *recorder) last() domain.StateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return domain.StateEvent{}
	}
	return r.events[len(r.events)-1]
}

func newManager(t *testing.T, dialer contracts.Dialer, tokens contracts.TokenSource) (*connection.Manager, *recorder) {
	t.Helper()
	m := connection.NewManager(nil, "ws://broker.test/chat", dialer, tokens)
	rec := &recorder{}
	m.Watch(rec.record)
	t.Cleanup(func() {
		_ = m.Disconnect()
		m.Close()
	})
	return m, rec
}

func TestManager_ConnectSuccess(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, domain.StateConnected, m.State())
	assert.NotNil(t, m.Conn())
	assert.Equal(t, "Bearer secret", dialer.Headers[0].Get("Authorization"))

	require.Eventually(t, func() bool { return len(rec.states()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ConnectionState{domain.StateConnecting, domain.StateConnected}, rec.states())
}

func TestManager_ConnectIsNoopWhileConnected(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, _ := newManager(t, dialer, contractstest.NewTokens("secret"))

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, dialer.DialCount())
}

func TestManager_ConnectFailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		dialErr error
		want    error
	}{
		{name: "auth rejected passes through", dialErr: domain.WrapError(domain.CodeAuthRejected, "refused", nil), want: domain.ErrAuthRejected},
		{name: "plain error is transport lost", dialErr: errors.New("connection refused"), want: domain.ErrTransportLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &contractstest.Dialer{}
			dialer.Queue(contractstest.DialResult{Err: tt.dialErr})
			m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))

			err := m.Connect(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.StateFailed, m.State())
			require.Eventually(t, func() bool { return rec.last().New == domain.StateFailed }, time.Second, 5*time.Millisecond)
			assert.ErrorIs(t, rec.last().Cause, tt.want)
		})
	}
}

func TestManager_MissingTokenIsAuthRejected(t *testing.T) {
	tokens := contractstest.NewTokens("")
	tokens.SetError(errors.New("no session"))
	dialer := &contractstest.Dialer{}
	m, _ := newManager(t, dialer, tokens)

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.Zero(t, dialer.DialCount())
}

func TestManager_SendRequiresConnected(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, _ := newManager(t, dialer, contractstest.NewTokens("secret"))

	err := m.Send("/app/join/r1", []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrNotConnected)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Send("/app/join/r1", []byte(`{"roomId":"r1"}`)))
	sent := dialer.LastConn().Sent("/app/join/r1")
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"roomId":"r1"}`, sent[0].Body)
}

func TestManager_LostConnectionFails(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))
	require.NoError(t, m.Connect(context.Background()))

	dialer.LastConn().Kill(errors.New("eof"))

	require.Eventually(t, func() bool { return m.State() == domain.StateFailed }, time.Second, 5*time.Millisecond)
	assert.Nil(t, m.Conn())
	require.Eventually(t, func() bool { return rec.last().New == domain.StateFailed }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.last().Cause, domain.ErrTransportLost)
	assert.ErrorIs(t, m.Send("/app/x", nil), domain.ErrNotConnected)
}

func TestManager_ServerAuthErrorKeepsCode(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))
	require.NoError(t, m.Connect(context.Background()))

	dialer.LastConn().Kill(domain.WrapError(domain.CodeAuthRejected, "token expired", nil))

	require.Eventually(t, func() bool { return rec.last().New == domain.StateFailed }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.last().Cause, domain.ErrAuthRejected)
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))
	require.NoError(t, m.Connect(context.Background()))
	conn := dialer.LastConn()

	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())

	assert.Equal(t, domain.StateDisconnected, m.State())
	assert.True(t, conn.Closed())
	require.Eventually(t, func() bool { return len(rec.states()) == 3 }, time.Second, 5*time.Millisecond)
	// a local close must not be reported as a failure
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []domain.ConnectionState{domain.StateConnecting, domain.StateConnected, domain.StateDisconnected}, rec.states())
}

func TestManager_ReconnectOnlyFromReconnecting(t *testing.T) {
	dialer := &contractstest.Dialer{}
	dialer.Queue(contractstest.DialResult{Err: errors.New("down")})
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))

	require.Error(t, m.Connect(context.Background()))
	require.NoError(t, m.Reconnect(context.Background()))
	assert.Equal(t, 1, dialer.DialCount(), "reconnect from Failed must not dial")

	require.True(t, m.BeginReconnect())
	assert.False(t, m.BeginReconnect())
	require.NoError(t, m.Reconnect(context.Background()))
	assert.Equal(t, domain.StateConnected, m.State())

	require.Eventually(t, func() bool { return len(rec.states()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ConnectionState{
		domain.StateConnecting, domain.StateFailed, domain.StateReconnecting, domain.StateConnected,
	}, rec.states())
}

func TestManager_HookRunsBeforeConnected(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, _ := newManager(t, dialer, contractstest.NewTokens("secret"))

	var stateInHook domain.ConnectionState
	m.OnHandshake(func(_ context.Context, conn contracts.Conn) error {
		stateInHook = m.State()
		_, err := conn.Subscribe("/topic/room/r1", func([]byte) {})
		return err
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, domain.StateConnecting, stateInHook)
	assert.Equal(t, []string{"/topic/room/r1"}, dialer.LastConn().Destinations())
}

func TestManager_HookFailureFailsAttempt(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, _ := newManager(t, dialer, contractstest.NewTokens("secret"))
	m.OnHandshake(func(context.Context, contracts.Conn) error { return errors.New("subscribe refused") })

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrTransportLost)
	assert.Equal(t, domain.StateFailed, m.State())
	assert.True(t, dialer.LastConn().Closed())
}

func TestManager_DisconnectSupersedesInflightAttempt(t *testing.T) {
	dialer := &contractstest.Dialer{}
	m, rec := newManager(t, dialer, contractstest.NewTokens("secret"))

	m.OnHandshake(func(context.Context, contracts.Conn) error {
		require.NoError(t, m.Disconnect())
		return nil
	})

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.Equal(t, domain.StateDisconnected, m.State())
	assert.True(t, dialer.LastConn().Closed())
	require.Eventually(t, func() bool { return len(rec.states()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ConnectionState{domain.StateConnecting, domain.StateDisconnected}, rec.states())
}

func TestManager_EveryWatcherSeesTransitionsInOrder(t *testing.T) {
	m, first := newManager(t, &contractstest.Dialer{}, contractstest.NewTokens("secret"))
	second := &recorder{}
	m.Watch(second.record)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect())

	want := []domain.ConnectionState{domain.StateConnecting, domain.StateConnected, domain.StateDisconnected}
	require.Eventually(t, func() bool { return len(second.states()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, first.states())
	assert.Equal(t, want, second.states())
}
