// Package stomptest runs an in-process STOMP-over-WebSocket broker for tests.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"livon-client/internal/plugins/stomp"

	"github.com/gorilla/websocket"
)

// Broker accepts clients, records every frame they send and can push
// MESSAGE frames to their subscriptions.
type Broker struct {
	t      testing.TB
	server *httptest.Server

	mu          sync.Mutex
	token       string
	rejectWith  string
	frames      []stomp.Frame
	clients     []*client
	connections int
}

type client struct {
	ws   *websocket.Conn
	wmu  sync.Mutex
	subs map[string]string // destination -> subscription id
	mu   sync.Mutex
}

// New starts a broker that accepts "Bearer <token>" credentials.
func New(t testing.TB, token string) *Broker {
	t.Helper()
	b := &Broker{t: t, token: token}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.serve(ws)
	}))
	t.Cleanup(b.Close)
	return b
}

// URL is the ws:// endpoint of the broker.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// RejectWith makes subsequent CONNECT frames fail with an ERROR frame
// carrying message; an empty message restores normal behavior.
func (b *Broker) RejectWith(message string) {
	b.mu.Lock()
	b.rejectWith = message
	b.mu.Unlock()
}

func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connections
}

// Frames returns every frame received so far with the given command.
func (b *Broker) Frames(command string) []stomp.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []stomp.Frame
	for _, f := range b.frames {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

// Sent returns the bodies of SEND frames addressed to destination.
func (b *Broker) Sent(destination string) []string {
	var out []string
	for _, f := range b.Frames(stomp.CmdSend) {
		if f.Header.Get("destination") == destination {
			out = append(out, string(f.Body))
		}
	}
	return out
}

// Subscribed reports whether the latest client subscribed to destination.
func (b *Broker) Subscribed(destination string) bool {
	c := b.latest()
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[destination]
	return ok
}

// Publish pushes body to the latest client's subscription on destination.
func (b *Broker) Publish(destination, body string) bool {
	c := b.latest()
	if c == nil {
		return false
	}
	c.mu.Lock()
	id, ok := c.subs[destination]
	c.mu.Unlock()
	if !ok {
		return false
	}
	f := stomp.Frame{Command: stomp.CmdMessage, Body: []byte(body)}
	f.Header.Add("subscription", id)
	f.Header.Add("destination", destination)
	f.Header.Add("message-id", strconv.FormatInt(time.Now().UnixNano(), 10))
	return c.write(f.Marshal()) == nil
}

// SendError pushes an ERROR frame to the latest client.
func (b *Broker) SendError(message string) {
	if c := b.latest(); c != nil {
		f := stomp.Frame{Command: stomp.CmdError}
		f.Header.Add("message", message)
		_ = c.write(f.Marshal())
	}
}

// DropConnections closes every client socket without a STOMP goodbye.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	clients := append([]*client(nil), b.clients...)
	b.mu.Unlock()
	for _, c := range clients {
		_ = c.ws.Close()
	}
}

func (b *Broker) Close() {
	b.DropConnections()
	b.server.Close()
}

func (b *Broker) latest() *client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (c *client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (b *Broker) serve(ws *websocket.Conn) {
	c := &client{ws: ws, subs: make(map[string]string)}
	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, ok, err := stomp.Parse(data)
		if err != nil || !ok {
			continue
		}
		b.mu.Lock()
		b.frames = append(b.frames, f)
		b.mu.Unlock()

		switch f.Command {
		case stomp.CmdConnect:
			if !b.accept(c, f) {
				return
			}
		case stomp.CmdSubscribe:
			c.mu.Lock()
			c.subs[f.Header.Get("destination")] = f.Header.Get("id")
			c.mu.Unlock()
		case stomp.CmdUnsubscribe:
			c.mu.Lock()
			for dest, id := range c.subs {
				if id == f.Header.Get("id") {
					delete(c.subs, dest)
				}
			}
			c.mu.Unlock()
		case stomp.CmdDisconnect:
			return
		}
	}
}

func (b *Broker) accept(c *client, f stomp.Frame) bool {
	b.mu.Lock()
	reject := b.rejectWith
	token := b.token
	b.mu.Unlock()
	if reject == "" && f.Header.Get("Authorization") != "Bearer "+token {
		reject = "Authentication failed: invalid token"
	}
	if reject != "" {
		e := stomp.Frame{Command: stomp.CmdError}
		e.Header.Add("message", reject)
		_ = c.write(e.Marshal())
		return false
	}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.connections++
	b.mu.Unlock()
	reply := stomp.Frame{Command: stomp.CmdConnected}
	reply.Header.Add("version", "1.2")
	reply.Header.Add("heart-beat", "0,0")
	return c.write(reply.Marshal()) == nil
}
