package services

import (
	"context"
	"encoding/json"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chat-services")

type SequencerOptions struct {
	OptimisticEcho bool
	TypingQuiet    time.Duration
}

// Sequencer turns user intents into outbound frames. It never queues: a send
// without a live connection fails with NotConnected.
type Sequencer struct {
	log       *slog.Logger
	roomID    string
	self      string
	publisher contracts.Publisher
	store     *Store
	notifier  contracts.Notifier
	exec      Executor
	opts      SequencerOptions
	typing    *TypingDebouncer
	now       func() time.Time
}

func NewSequencer(
	log *slog.Logger,
	self string,
	publisher contracts.Publisher,
	store *Store,
	notifier contracts.Notifier,
	exec Executor,
	opts SequencerOptions,
) *Sequencer {
	if exec == nil {
		exec = Inline
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = 3 * time.Second
	}
	log = logging.OrDiscard(log)
	if opts.OptimisticEcho && self == "" {
		// an unmarked echo is matched on sender, which is unknown here
		log.Warn("sequencer - new - optimistic echo disabled, user id unknown")
		opts.OptimisticEcho = false
	}
	s := &Sequencer{
		log:       log,
		roomID:    store.RoomID(),
		self:      self,
		publisher: publisher,
		store:     store,
		notifier:  notifier,
		exec:      exec,
		opts:      opts,
		now:       time.Now,
	}
	s.typing = NewTypingDebouncer(opts.TypingQuiet, s.sendTyping)
	return s
}

// SendText publishes content to the room.
func (s *Sequencer) SendText(ctx context.Context, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.ErrEmpty
	}
	return s.send(ctx, content, nil)
}

// SendWithAttachment publishes an uploaded attachment; the caption may be empty.
func (s *Sequencer) SendWithAttachment(ctx context.Context, caption string, att domain.Attachment) (domain.Message, error) {
	return s.send(ctx, strings.TrimSpace(caption), &att)
}

func (s *Sequencer) send(ctx context.Context, content string, att *domain.Attachment) (domain.Message, error) {
	clientMsgID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Sequencer.SendText", trace.WithAttributes(
		attribute.String("chat.room", s.roomID),
		attribute.String("chat.client_msg_id", clientMsgID),
		attribute.Bool("chat.attachment", att != nil),
	))
	defer span.End()

	payload, err := json.Marshal(domain.SendMessageRequest{
		RoomID:      s.roomID,
		Content:     content,
		ClientMsgID: clientMsgID,
		Attachment:  att,
	})
	if err != nil {
		span.RecordError(err)
		return domain.Message{}, err
	}
	msg := domain.Message{
		ClientMsgID:    clientMsgID,
		RoomID:         s.roomID,
		Sender:         s.self,
		Content:        content,
		Timestamp:      s.now(),
		DeliveryStatus: domain.StatusSent,
		Pending:        true,
	}
	if att != nil {
		a := *att
		msg.Attachment = &a
	}
	// the pending entry is queued ahead of the publish so its echo, applied
	// on the same executor, always finds it
	if s.opts.OptimisticEcho {
		echo := msg.Clone()
		s.exec(func() {
			if s.store.AppendPending(echo) {
				s.notifyMessages(ctx, echo.Timestamp)
			}
		})
	}
	if err := s.publisher.Send(domain.SendMessageDestination(s.roomID), payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		s.log.WarnContext(ctx, "sequencer - send - publish failed", logging.ClientMsg(clientMsgID), logging.Err(err))
		if s.opts.OptimisticEcho {
			s.exec(func() {
				if s.store.RemovePending(clientMsgID) {
					s.notifyMessages(ctx, s.now())
				}
			})
		}
		return domain.Message{}, err
	}
	_ = s.typing.Stop()

	span.SetStatus(codes.Ok, "sent")
	s.log.DebugContext(ctx, "sequencer - send - success", logging.ClientMsg(clientMsgID))
	return msg, nil
}

func (s *Sequencer) notifyMessages(ctx context.Context, at time.Time) {
	s.notifier.Notify(ctx, domain.Event{
		Kind:   domain.EventMessagesChanged,
		RoomID: s.roomID,
		At:     at,
		User:   s.self,
	})
}

// StartTyping records a keystroke.
func (s *Sequencer) StartTyping() error { return s.typing.Keystroke() }

// StopTyping ends the typing burst immediately.
func (s *Sequencer) StopTyping() error { return s.typing.Stop() }

func (s *Sequencer) sendTyping(start bool) error {
	req := domain.TypingRequest{RoomID: s.roomID, Type: domain.EventTypingStop}
	dest := domain.TypingStopDestination(s.roomID)
	if start {
		req.Type = domain.EventTypingStart
		dest = domain.TypingStartDestination(s.roomID)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.publisher.Send(dest, payload)
}

// Join announces the session in the room.
func (s *Sequencer) Join(ctx context.Context) error {
	if err := s.sendRoom(domain.JoinDestination(s.roomID)); err != nil {
		s.log.WarnContext(ctx, "sequencer - join - failed", logging.Err(err))
		return err
	}
	s.log.InfoContext(ctx, "sequencer - join - success")
	return nil
}

// Leave is best effort: a dead transport is skipped silently.
func (s *Sequencer) Leave(ctx context.Context) error {
	_ = s.typing.Stop()
	s.typing.Close()
	err := s.sendRoom(domain.LeaveDestination(s.roomID))
	if err == nil {
		s.log.InfoContext(ctx, "sequencer - leave - success")
		return nil
	}
	if code, _ := domain.CodeOf(err); code == domain.CodeNotConnected {
		s.log.DebugContext(ctx, "sequencer - leave - skipped, not connected")
		return nil
	}
	return err
}

func (s *Sequencer) sendRoom(dest string) error {
	payload, err := json.Marshal(domain.RoomRequest{RoomID: s.roomID})
	if err != nil {
		return err
	}
	return s.publisher.Send(dest, payload)
}

// Close cancels the typing window without sending.
func (s *Sequencer) Close() { s.typing.Close() }
