package stomp

import (
	"context"
	"errors"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 512 * 1024 // 512KB max message size

// Conn is a STOMP session carried over one WebSocket.
type Conn struct {
	ws           *websocket.Conn
	log          *slog.Logger
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	out    chan []byte

	mu     sync.Mutex
	subs   map[string]*subscription
	err    error
	nextID atomic.Int64

	closing atomic.Bool

	closeOnce sync.Once
	loops     sync.WaitGroup
	flushed   chan struct{}
}

var _ contracts.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, log *slog.Logger, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:           ws,
		log:          log,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		out:          make(chan []byte, 256),
		subs:         make(map[string]*subscription),
		flushed:      make(chan struct{}),
	}
}

// start launches the read and write loops once the handshake completed.
// readTimeout is zero when the broker does not send heart-beats.
func (c *Conn) start(sendEvery, readTimeout time.Duration) {
	c.loops.Add(2)
	go c.writeLoop(sendEvery)
	go c.readLoop(readTimeout)
}

func (c *Conn) Subscribe(destination string, handler func(body []byte)) (contracts.Subscription, error) {
	sub := &subscription{
		id:          "sub-" + strconv.FormatInt(c.nextID.Add(1), 10),
		destination: destination,
		handler:     handler,
		conn:        c,
	}
	c.mu.Lock()
	c.subs[sub.id] = sub
	c.mu.Unlock()
	f := Frame{Command: CmdSubscribe}
	f.Header.Add("id", sub.id)
	f.Header.Add("destination", destination)
	f.Header.Add("ack", "auto")
	if err := c.enqueue(f.Marshal()); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

func (c *Conn) Send(destination string, body []byte) error {
	f := Frame{Command: CmdSend, Body: body}
	f.Header.Add("destination", destination)
	f.Header.Add("content-type", "application/json")
	return c.enqueue(f.Marshal())
}

func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close flushes frames already queued, sends DISCONNECT best-effort and
// tears the socket down. Calling Close on a dead connection is a no-op.
func (c *Conn) Close() error {
	if c.ctx.Err() == nil && c.closing.CompareAndSwap(false, true) {
		wait := c.writeTimeout
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case c.out <- nil:
			select {
			case <-c.flushed:
			case <-c.ctx.Done():
			case <-time.After(wait):
			}
		case <-c.ctx.Done():
		case <-time.After(wait):
		}
	}
	c.fail(nil)
	c.loops.Wait()
	return nil
}

func (c *Conn) enqueue(data []byte) error {
	if c.ctx.Err() != nil {
		return domain.WrapError(domain.CodeNotConnected, "stomp - enqueue - connection closed", c.Err())
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return domain.WrapError(domain.CodeNotConnected, "stomp - enqueue - connection closed", c.Err())
	}
}

// fail records the first cause and closes the connection.
func (c *Conn) fail(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.subs = make(map[string]*subscription)
		c.mu.Unlock()
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *Conn) writeDirect(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) writeLoop(heartbeat time.Duration) {
	defer c.loops.Done()
	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			if data == nil {
				// close requested: everything queued before it is written
				_ = c.writeDirect(Frame{Command: CmdDisconnect}.Marshal())
				close(c.flushed)
				return
			}
			if err := c.writeDirect(data); err != nil {
				c.log.Warn("stomp - write loop - write failed", logging.Err(err))
				c.fail(domain.WrapError(domain.CodeTransportLost, "stomp - write failed", err))
				return
			}
		case <-tick:
			if err := c.writeDirect([]byte("\n")); err != nil {
				c.fail(domain.WrapError(domain.CodeTransportLost, "stomp - heart-beat failed", err))
				return
			}
		}
	}
}

func (c *Conn) readLoop(readTimeout time.Duration) {
	defer c.loops.Done()
	c.ws.SetReadLimit(maxFrameSize)
	for {
		if readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				c.fail(nil)
				return
			}
			if c.ctx.Err() == nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warn("stomp - read loop - unexpected close", logging.Err(err))
				}
				c.fail(domain.WrapError(domain.CodeTransportLost, "stomp - read failed", err))
			}
			return
		}
		f, ok, err := Parse(data)
		if err != nil {
			c.log.Warn("stomp - read loop - unparsable frame dropped", logging.Err(err))
			continue
		}
		if !ok {
			continue
		}
		switch f.Command {
		case CmdMessage:
			c.deliver(f)
		case CmdError:
			c.fail(classifyError(f))
			return
		case CmdReceipt:
		default:
			c.log.Debug("stomp - read loop - unexpected command", "command", f.Command)
		}
	}
}

func (c *Conn) deliver(f Frame) {
	id := f.Header.Get("subscription")
	c.mu.Lock()
	sub := c.subs[id]
	c.mu.Unlock()
	if sub == nil {
		c.log.Debug("stomp - deliver - no subscription", "subscription", id, logging.Destination(f.Header.Get("destination")))
		return
	}
	sub.handler(f.Body)
}

type subscription struct {
	id          string
	destination string
	handler     func(body []byte)
	conn        *Conn
}

func (s *subscription) ID() string          { return s.id }
func (s *subscription) Destination() string { return s.destination }

func (s *subscription) Unsubscribe() error {
	s.conn.mu.Lock()
	_, active := s.conn.subs[s.id]
	delete(s.conn.subs, s.id)
	s.conn.mu.Unlock()
	if !active {
		return nil
	}
	f := Frame{Command: CmdUnsubscribe}
	f.Header.Add("id", s.id)
	if err := s.conn.enqueue(f.Marshal()); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("unsubscribe %s: %w", s.destination, err)
	}
	return nil
}
