package contracts

import (
	"context"
	"net/http"
)

// Conn is one live broker connection. A Conn is never reused after it dies;
// reconnecting yields a new instance.
type Conn interface {
	// Subscribe registers handler for every frame delivered on destination.
	// Handlers run one at a time, in receipt order, on the connection's read loop.
	Subscribe(destination string, handler func(body []byte)) (Subscription, error)
	// Send publishes body to destination without waiting for a receipt.
	Send(destination string, body []byte) error
	// Done is closed once the connection is unusable.
	Done() <-chan struct{}
	// Err reports why Done was closed; nil after a local Close.
	Err() error
	Close() error
}

type Subscription interface {
	ID() string
	Destination() string
	Unsubscribe() error
}

// Dialer opens a Conn to endpoint, carrying headers on the handshake.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, headers http.Header) (Conn, error)
}

// Publisher sends one frame over whatever connection is currently live.
type Publisher interface {
	Send(destination string, payload []byte) error
}
