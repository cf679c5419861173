package stomp

import (
	"context"
	"errors"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type Options struct {
	HandshakeTimeout time.Duration
	// Heartbeat is both the interval we offer to send at and the interval we
	// ask the broker to send at. Zero disables heart-beating.
	Heartbeat    time.Duration
	WriteTimeout time.Duration
}

// Dialer opens STOMP 1.2 sessions over WebSocket.
type Dialer struct {
	opts Options
	ws   *websocket.Dialer
	log  *slog.Logger
}

var _ contracts.Dialer = (*Dialer)(nil)

func NewDialer(log *slog.Logger, opts Options) *Dialer {
	return &Dialer{
		opts: opts,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Subprotocols:     []string{"v12.stomp"},
		},
		log: logging.OrDiscard(log),
	}
}

// Dial upgrades to WebSocket and completes the STOMP CONNECT handshake.
// Failures are classified as AuthRejected or TransportLost.
func (d *Dialer) Dial(ctx context.Context, endpoint string, headers http.Header) (contracts.Conn, error) {
	if d.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.HandshakeTimeout)
		defer cancel()
	}
	ws, resp, err := d.ws.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, domain.WrapError(domain.CodeAuthRejected, "stomp - dial - upgrade refused", fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, domain.WrapError(domain.CodeTransportLost, "stomp - dial - upgrade failed", err)
	}

	connect := Frame{Command: CmdConnect}
	connect.Header.Add("accept-version", "1.2")
	connect.Header.Add("host", hostOf(endpoint))
	hb := strconv.FormatInt(d.opts.Heartbeat.Milliseconds(), 10)
	connect.Header.Add("heart-beat", hb+","+hb)
	if auth := headers.Get("Authorization"); auth != "" {
		connect.Header.Add("Authorization", auth)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetWriteDeadline(deadline)
		_ = ws.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := ws.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		_ = ws.Close()
		return nil, domain.WrapError(domain.CodeTransportLost, "stomp - dial - connect frame failed", err)
	}
	reply, err := readHandshake(ws)
	if err != nil {
		_ = ws.Close()
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		return nil, domain.WrapError(domain.CodeTransportLost, "stomp - dial - no handshake reply", err)
	}
	if reply.Command == CmdError {
		_ = ws.Close()
		return nil, classifyError(reply)
	}
	if reply.Command != CmdConnected {
		_ = ws.Close()
		return nil, domain.WrapError(domain.CodeTransportLost, "stomp - dial - unexpected reply", fmt.Errorf("command %q", reply.Command))
	}
	if !stop() {
		// the handshake deadline fired while we were accepting the reply
		return nil, domain.WrapError(domain.CodeTransportLost, "stomp - dial - handshake timed out", ctx.Err())
	}
	_ = ws.SetWriteDeadline(time.Time{})
	_ = ws.SetReadDeadline(time.Time{})

	sendEvery, readTimeout := negotiateHeartbeat(d.opts.Heartbeat, reply.Header.Get("heart-beat"))
	conn := newConn(ws, d.log, d.opts.WriteTimeout)
	conn.start(sendEvery, readTimeout)
	d.log.Debug("stomp - dial - connected", "endpoint", endpoint, "server", reply.Header.Get("server"))
	return conn, nil
}

func readHandshake(ws *websocket.Conn) (Frame, error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		f, ok, err := Parse(data)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
	}
}

// negotiateHeartbeat applies the STOMP rule: each side uses the larger of what
// one offers and the other asks for; zero on either side disables it.
func negotiateHeartbeat(ours time.Duration, serverHeader string) (sendEvery, readTimeout time.Duration) {
	if ours <= 0 || serverHeader == "" {
		return 0, 0
	}
	sx, sy, found := strings.Cut(serverHeader, ",")
	if !found {
		return 0, 0
	}
	serverSends, err1 := strconv.ParseInt(strings.TrimSpace(sx), 10, 64)
	serverWants, err2 := strconv.ParseInt(strings.TrimSpace(sy), 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	if serverWants > 0 {
		sendEvery = max(ours, time.Duration(serverWants)*time.Millisecond)
	}
	if serverSends > 0 {
		readTimeout = 3 * max(ours, time.Duration(serverSends)*time.Millisecond)
	}
	return sendEvery, readTimeout
}

var authMarkers = []string{"authentication", "unauthorized", "forbidden", "access denied", "expired", "invalid token"}

// classifyError maps a broker ERROR frame onto the failure taxonomy.
func classifyError(f Frame) error {
	msg := f.Header.Get("message")
	if msg == "" {
		msg = strings.TrimSpace(string(f.Body))
	}
	lower := strings.ToLower(msg)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return domain.WrapError(domain.CodeAuthRejected, "stomp - broker refused credential", errors.New(msg))
		}
	}
	return domain.WrapError(domain.CodeTransportLost, "stomp - broker error", errors.New(msg))
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return "/"
	}
	return u.Hostname()
}
