package connection

import (
	"context"
	"errors"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("connection-manager")

// HandshakeHook runs after the broker accepted the connection and before the
// state becomes Connected. A hook error fails the attempt as TransportLost.
type HandshakeHook func(ctx context.Context, conn contracts.Conn) error

// Manager owns the broker connection and its ConnectionState.
type Manager struct {
	endpoint string
	dialer   contracts.Dialer
	tokens   contracts.TokenSource
	log      *slog.Logger

	mu    sync.Mutex
	state domain.ConnectionState
	conn  contracts.Conn
	epoch uint64
	hook  HandshakeHook

	events *eventQueue
}

var _ contracts.Publisher = (*Manager)(nil)

func NewManager(log *slog.Logger, endpoint string, dialer contracts.Dialer, tokens contracts.TokenSource) *Manager {
	return &Manager{
		endpoint: endpoint,
		dialer:   dialer,
		tokens:   tokens,
		log:      logging.OrDiscard(log),
		state:    domain.StateDisconnected,
		events:   newEventQueue(),
	}
}

// OnHandshake installs the post-handshake hook.
func (m *Manager) OnHandshake(hook HandshakeHook) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

// Watch registers fn for every state transition. Transitions are delivered
// in order on a dedicated goroutine, so fn may call back into the Manager.
func (m *Manager) Watch(fn func(domain.StateEvent)) {
	m.events.watch(fn)
}

func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Conn returns the live connection, or nil.
func (m *Manager) Conn() contracts.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Connect establishes a connection from Disconnected or Failed. It is a
// no-op while a connection is live or being established.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, false)
}

// Reconnect performs one attempt from Reconnecting. It does nothing in any
// other state, so a retry scheduled before a teardown cannot resurrect it.
func (m *Manager) Reconnect(ctx context.Context) error {
	return m.connect(ctx, true)
}

// BeginReconnect moves Failed to Reconnecting. It reports whether it did.
func (m *Manager) BeginReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateFailed {
		return false
	}
	m.transitionLocked(domain.StateReconnecting, nil)
	return true
}

func (m *Manager) connect(ctx context.Context, reconnect bool) error {
	m.mu.Lock()
	switch {
	case reconnect && m.state != domain.StateReconnecting:
		m.mu.Unlock()
		return nil
	case !reconnect && m.state != domain.StateDisconnected && m.state != domain.StateFailed:
		m.mu.Unlock()
		return nil
	}
	if !reconnect {
		m.transitionLocked(domain.StateConnecting, nil)
	}
	epoch := m.epoch
	hook := m.hook
	m.mu.Unlock()

	ctx, span := tracer.Start(ctx, "Manager.Connect", trace.WithAttributes(
		attribute.String("broker.endpoint", m.endpoint),
		attribute.Bool("reconnect", reconnect),
	))
	defer span.End()

	token, err := m.tokens.Token(ctx)
	if err != nil {
		if _, ok := domain.CodeOf(err); !ok {
			err = domain.WrapError(domain.CodeAuthRejected, "connection - connect - no credential", err)
		}
		return m.failAttempt(ctx, span, epoch, err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	conn, err := m.dialer.Dial(ctx, m.endpoint, headers)
	if err != nil {
		if _, ok := domain.CodeOf(err); !ok {
			err = domain.WrapError(domain.CodeTransportLost, "connection - connect - dial failed", err)
		}
		return m.failAttempt(ctx, span, epoch, err)
	}
	if hook != nil {
		if err := hook(ctx, conn); err != nil {
			_ = conn.Close()
			return m.failAttempt(ctx, span, epoch, domain.WrapError(domain.CodeTransportLost, "connection - connect - handshake hook failed", err))
		}
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// torn down while the attempt was in flight
		m.mu.Unlock()
		_ = conn.Close()
		span.SetStatus(codes.Error, "superseded")
		return domain.ErrSessionClosed
	}
	m.conn = conn
	m.epoch++
	current := m.epoch
	m.transitionLocked(domain.StateConnected, nil)
	m.mu.Unlock()

	go m.watchConn(conn, current)
	span.SetStatus(codes.Ok, "connected")
	m.log.InfoContext(ctx, "connection - connect - success", "endpoint", m.endpoint)
	return nil
}

func (m *Manager) failAttempt(ctx context.Context, span trace.Span, epoch uint64, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "connect failed")
	m.mu.Lock()
	if m.epoch == epoch {
		m.transitionLocked(domain.StateFailed, err)
	}
	m.mu.Unlock()
	m.log.WarnContext(ctx, "connection - connect - failed", logging.Err(err))
	return err
}

// watchConn turns the death of a live connection into a Failed transition.
func (m *Manager) watchConn(conn contracts.Conn, epoch uint64) {
	<-conn.Done()
	cause := conn.Err()
	if cause == nil {
		cause = domain.WrapError(domain.CodeTransportLost, "connection - closed by peer", nil)
	} else if _, ok := domain.CodeOf(cause); !ok {
		cause = domain.WrapError(domain.CodeTransportLost, "connection - lost", cause)
	}
	m.mu.Lock()
	if m.epoch != epoch || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.epoch++
	m.transitionLocked(domain.StateFailed, cause)
	m.mu.Unlock()
	m.log.Warn("connection - watch - connection lost", logging.Err(cause))
}

// Disconnect closes the live connection, if any. Idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state == domain.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	m.conn = nil
	m.epoch++
	m.transitionLocked(domain.StateDisconnected, nil)
	m.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send publishes payload on the live connection. It fails with NotConnected
// unless the state is Connected; it never queues.
func (m *Manager) Send(destination string, payload []byte) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != domain.StateConnected || conn == nil {
		return domain.WrapError(domain.CodeNotConnected, "connection - send", errors.New("state is "+state.String()))
	}
	if err := conn.Send(destination, payload); err != nil {
		if _, ok := domain.CodeOf(err); !ok {
			err = domain.WrapError(domain.CodeNotConnected, "connection - send", err)
		}
		return err
	}
	return nil
}

// Close stops event delivery. The Manager must be disconnected first.
func (m *Manager) Close() {
	m.events.close()
}

func (m *Manager) transitionLocked(next domain.ConnectionState, cause error) {
	prev := m.state
	m.state = next
	m.log.Debug("connection - transition - state changed", logging.State(next.String()), "previous", prev.String())
	m.events.push(domain.StateEvent{Old: prev, New: next, Cause: cause})
}
