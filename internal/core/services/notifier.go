package services

import (
	"context"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
)

// ChannelNotifier exposes events as a channel. When the reader falls behind
// events are dropped rather than stalling the session loop.
type ChannelNotifier struct {
	log *slog.Logger
	ch  chan domain.Event
}

func NewChannelNotifier(log *slog.Logger, buffer int) *ChannelNotifier {
	return &ChannelNotifier{log: logging.OrDiscard(log), ch: make(chan domain.Event, buffer)}
}

func (n *ChannelNotifier) Notify(ctx context.Context, evt domain.Event) {
	select {
	case n.ch <- evt:
	default:
		n.log.WarnContext(ctx, "notifier - notify - buffer full, event dropped", "kind", string(evt.Kind))
	}
}

func (n *ChannelNotifier) Events() <-chan domain.Event { return n.ch }

// FanOut delivers every event to each notifier in order.
type FanOut []contracts.Notifier

func (f FanOut) Notify(ctx context.Context, evt domain.Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, evt)
		}
	}
}
