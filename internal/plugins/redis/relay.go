package redis

import (
	"context"
	"encoding/json"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Relay forwards session events to Redis for out-of-process presentation
// layers: each event is published on ChannelFor(room) and appended to the
// room's stream, and presence snapshots are mirrored into the presence set.
// Notify never blocks; Run does the network work.
type Relay struct {
	log      *slog.Logger
	rdb      *redis.Client
	presence contracts.PresenceStore
	stream   *EventStream
	events   chan domain.Event
}

var _ contracts.Notifier = (*Relay)(nil)

func NewRelay(log *slog.Logger, rdb *redis.Client, presence contracts.PresenceStore, stream *EventStream, buffer int) *Relay {
	if buffer <= 0 {
		buffer = 256
	}
	return &Relay{
		log:      logging.OrDiscard(log),
		rdb:      rdb,
		presence: presence,
		stream:   stream,
		events:   make(chan domain.Event, buffer),
	}
}

func (r *Relay) Notify(ctx context.Context, evt domain.Event) {
	select {
	case r.events <- evt:
	default:
		r.log.WarnContext(ctx, "relay - notify - buffer full, event dropped", "kind", string(evt.Kind))
	}
}

// Run forwards events until ctx is done, then flushes what is still buffered.
func (r *Relay) Run(ctx context.Context) error {
	r.log.InfoContext(ctx, "relay - run - started")
	fwd := context.WithoutCancel(ctx)
	for {
		select {
		case evt := <-r.events:
			r.forward(fwd, evt)
		case <-ctx.Done():
			r.Flush()
			r.log.Info("relay - run - stopped")
			return nil
		}
	}
}

// Flush forwards every buffered event. It is safe to call after Run has
// returned, which is how events emitted during session teardown get out.
func (r *Relay) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case evt := <-r.events:
			r.forward(ctx, evt)
		default:
			return
		}
	}
}

func (r *Relay) forward(ctx context.Context, evt domain.Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		r.log.ErrorContext(ctx, "relay - forward - marshal failed", logging.Err(err))
		return
	}
	if err := r.rdb.Publish(ctx, ChannelFor(evt.RoomID), raw).Err(); err != nil {
		r.log.WarnContext(ctx, "relay - forward - publish failed", logging.Room(evt.RoomID), logging.Err(err))
	}
	if r.stream != nil {
		if _, err := r.stream.Append(ctx, evt.RoomID, raw); err != nil {
			r.log.WarnContext(ctx, "relay - forward - append to stream failed", logging.Room(evt.RoomID), logging.Err(err))
		}
	}
	if evt.Kind == domain.EventPresenceChanged && r.presence != nil {
		if err := r.presence.ReplaceOnline(ctx, evt.RoomID, evt.Users); err != nil {
			r.log.WarnContext(ctx, "relay - forward - presence mirror failed", logging.Room(evt.RoomID), logging.Err(err))
		}
	}
	if evt.Kind == domain.EventStateChanged && evt.State == domain.StateDisconnected && r.presence != nil {
		if err := r.presence.ClearRoom(ctx, evt.RoomID); err != nil {
			r.log.WarnContext(ctx, "relay - forward - presence clear failed", logging.Room(evt.RoomID), logging.Err(err))
		}
	}
}
