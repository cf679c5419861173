// Package contractstest provides in-memory implementations of the session
// collaborators for tests.
package contractstest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
)

// Frame is one payload sent through a fake connection.
type Frame struct {
	Destination string
	Body        string
}

// Conn is an in-memory contracts.Conn.
type Conn struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	sent     []Frame
	sendErr  error
	subErr   error
	nextID   int
	err      error
	done     chan struct{}
	once     sync.Once
	closed   bool
	Unsubbed []string
}

func NewConn() *Conn {
	return &Conn{subs: make(map[string]*Subscription), done: make(chan struct{})}
}

func (c *Conn) Subscribe(destination string, handler func([]byte)) (contracts.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.nextID++
	sub := &Subscription{id: "sub-" + strconv.Itoa(c.nextID), destination: destination, handler: handler, conn: c}
	c.subs[sub.id] = sub
	return sub, nil
}

func (c *Conn) Send(destination string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrNotConnected
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, Frame{Destination: destination, Body: string(body)})
	return nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	c.kill(nil)
	return nil
}

// Kill simulates the transport dying with cause.
func (c *Conn) Kill(cause error) { c.kill(cause) }

func (c *Conn) kill(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = cause
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// FailSubscribes makes every later Subscribe return err.
func (c *Conn) FailSubscribes(err error) {
	c.mu.Lock()
	c.subErr = err
	c.mu.Unlock()
}

// Sent returns the frames sent to destination, or all frames when empty.
func (c *Conn) Sent(destination string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Frame
	for _, f := range c.sent {
		if destination == "" || f.Destination == destination {
			out = append(out, f)
		}
	}
	return out
}

// Destinations lists destinations with an active subscription.
func (c *Conn) Destinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s.destination)
	}
	return out
}

// Deliver invokes the handler subscribed to destination, as the read loop would.
func (c *Conn) Deliver(destination string, body string) bool {
	c.mu.Lock()
	var target *Subscription
	for _, s := range c.subs {
		if s.destination == destination {
			target = s
			break
		}
	}
	c.mu.Unlock()
	if target == nil {
		return false
	}
	target.handler([]byte(body))
	return true
}

type Subscription struct {
	id          string
	destination string
	handler     func([]byte)
	conn        *Conn
}

func (s *Subscription) ID() string          { return s.id }
func (s *Subscription) Destination() string { return s.destination }

func (s *Subscription) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	delete(s.conn.subs, s.id)
	s.conn.Unsubbed = append(s.conn.Unsubbed, s.destination)
	return nil
}

// Dialer hands out queued results; when the queue is empty it creates a
// fresh Conn.
type Dialer struct {
	mu      sync.Mutex
	results []DialResult
	Dials   int
	Headers []http.Header
	Conns   []*Conn
}

type DialResult struct {
	Conn *Conn
	Err  error
}

func (d *Dialer) Queue(results ...DialResult) {
	d.mu.Lock()
	d.results = append(d.results, results...)
	d.mu.Unlock()
}

func (d *Dialer) Dial(_ context.Context, _ string, headers http.Header) (contracts.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials++
	d.Headers = append(d.Headers, headers.Clone())
	var res DialResult
	if len(d.results) > 0 {
		res = d.results[0]
		d.results = d.results[1:]
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Conn == nil {
		res.Conn = NewConn()
	}
	d.Conns = append(d.Conns, res.Conn)
	return res.Conn, nil
}

func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials
}

// LastConn returns the most recently dialed connection.
func (d *Dialer) LastConn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

// Tokens is a static auth collaborator that records rejections.
type Tokens struct {
	mu       sync.Mutex
	token    string
	err      error
	Rejected []error
}

func NewTokens(token string) *Tokens { return &Tokens{token: token} }

func (t *Tokens) Token(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token, t.err
}

func (t *Tokens) SetError(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *Tokens) OnAuthRejected(_ context.Context, err error) {
	t.mu.Lock()
	t.Rejected = append(t.Rejected, err)
	t.mu.Unlock()
}

func (t *Tokens) RejectedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Rejected)
}

// Notifier records every event.
type Notifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *Notifier) Notify(_ context.Context, evt domain.Event) {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
}

// Events returns recorded events of kind, or all when kind is empty.
func (n *Notifier) Events(kind domain.EventKind) []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Event
	for _, e := range n.events {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Publisher records frames and can be switched to fail.
// OnSend, when set, runs after a frame is recorded and before Send returns,
// the way a fast broker can answer before the publisher does.
type Publisher struct {
	OnSend func(destination string, payload []byte)

	mu     sync.Mutex
	frames []Frame
	err    error
}

func (p *Publisher) Send(destination string, payload []byte) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.frames = append(p.frames, Frame{Destination: destination, Body: string(payload)})
	hook := p.OnSend
	p.mu.Unlock()
	if hook != nil {
		hook(destination, payload)
	}
	return nil
}

func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *Publisher) Frames(destination string) []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Frame
	for _, f := range p.frames {
		if destination == "" || f.Destination == destination {
			out = append(out, f)
		}
	}
	return out
}

// Uploader returns a fixed attachment or error.
type Uploader struct {
	Attachment domain.Attachment
	Err        error
	mu         sync.Mutex
	Calls      int
}

func (u *Uploader) Upload(_ context.Context, _ string, _ domain.File) (domain.Attachment, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Calls++
	return u.Attachment, u.Err
}

// History returns a fixed backlog.
type History struct {
	Messages []domain.Message
	Err      error
}

func (h History) FetchHistory(context.Context, string) ([]domain.Message, error) {
	if h.Err != nil {
		return nil, h.Err
	}
	return append([]domain.Message(nil), h.Messages...), nil
}

var ErrBoom = errors.New("boom")

// NopHandler discards every frame.
type NopHandler struct{}

func (NopHandler) OnMessage([]byte)     {}
func (NopHandler) OnReceipt([]byte)     {}
func (NopHandler) OnStatus([]byte)      {}
func (NopHandler) OnOnlineUsers([]byte) {}
func (NopHandler) OnTyping([]byte)      {}
func (NopHandler) OnError([]byte)       {}
