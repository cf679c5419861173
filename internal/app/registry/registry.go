package registry

import (
	"errors"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"sync"
)

// Registry holds the active subscriptions of one room session. It guarantees
// a single subscription per topic for the current connection.
type Registry struct {
	mu      sync.Mutex
	log     *slog.Logger
	handler contracts.TopicHandler
	conn    contracts.Conn
	roomID  string
	subs    map[domain.Topic]contracts.Subscription
}

func NewRegistry(log *slog.Logger, handler contracts.TopicHandler) *Registry {
	return &Registry{
		log:     logging.OrDiscard(log),
		handler: handler,
		subs:    make(map[domain.Topic]contracts.Subscription),
	}
}

// SubscribeAll subscribes every topic of roomID on conn. Calling it again for
// the same conn and room is a no-op; a new conn drops the old handles first.
func (r *Registry) SubscribeAll(conn contracts.Conn, roomID string) ([]contracts.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == conn && r.roomID == roomID && len(r.subs) == len(domain.Topics) {
		return r.snapshotLocked(), nil
	}
	if r.conn != nil {
		r.releaseLocked(r.conn != conn)
	}
	r.conn, r.roomID = conn, roomID

	for _, topic := range domain.Topics {
		if _, ok := r.subs[topic]; ok {
			continue
		}
		dest := topic.Destination(roomID)
		sub, err := conn.Subscribe(dest, r.route(topic))
		if err != nil {
			r.log.Error("registry - subscribe - failed", logging.Topic(topic.String()), logging.Destination(dest), logging.Err(err))
			r.releaseLocked(false)
			r.conn = nil
			return nil, fmt.Errorf("registry - subscribe %s: %w", dest, err)
		}
		r.subs[topic] = sub
	}
	r.log.Info("registry - subscribe - success", logging.Room(roomID), "topics", len(r.subs))
	return r.snapshotLocked(), nil
}

// UnsubscribeAll releases every active subscription. Handles bound to a dead
// connection are simply forgotten.
func (r *Registry) UnsubscribeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.releaseLocked(false)
	r.conn = nil
	r.roomID = ""
	return err
}

// Active returns the destinations currently subscribed.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for _, topic := range domain.Topics {
		if sub, ok := r.subs[topic]; ok {
			out = append(out, sub.Destination())
		}
	}
	return out
}

func (r *Registry) releaseLocked(stale bool) error {
	var errs []error
	if !stale {
		for _, sub := range r.subs {
			if err := sub.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	clear(r.subs)
	return errors.Join(errs...)
}

func (r *Registry) snapshotLocked() []contracts.Subscription {
	out := make([]contracts.Subscription, 0, len(r.subs))
	for _, topic := range domain.Topics {
		if sub, ok := r.subs[topic]; ok {
			out = append(out, sub)
		}
	}
	return out
}

func (r *Registry) route(topic domain.Topic) func([]byte) {
	switch topic {
	case domain.TopicMessages:
		return r.handler.OnMessage
	case domain.TopicReceipts:
		return r.handler.OnReceipt
	case domain.TopicStatus:
		return r.handler.OnStatus
	case domain.TopicUsers:
		return r.handler.OnOnlineUsers
	case domain.TopicTyping:
		return r.handler.OnTyping
	default:
		return r.handler.OnError
	}
}
