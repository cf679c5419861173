package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"time"
)

// Dispatcher decodes inbound frames and applies them to the store. Every
// handler hands its work to the session loop, so store mutation stays
// serialized and frames of one topic apply in receipt order.
type Dispatcher struct {
	log      *slog.Logger
	roomID   string
	self     string
	store    *Store
	typing   *TypingSet
	notifier contracts.Notifier
	exec     Executor
	now      func() time.Time
}

var _ contracts.TopicHandler = (*Dispatcher)(nil)

func NewDispatcher(
	log *slog.Logger,
	self string,
	store *Store,
	typing *TypingSet,
	notifier contracts.Notifier,
	exec Executor,
) *Dispatcher {
	if exec == nil {
		exec = Inline
	}
	d := &Dispatcher{
		log:      logging.OrDiscard(log),
		roomID:   store.RoomID(),
		self:     self,
		store:    store,
		typing:   typing,
		notifier: notifier,
		exec:     exec,
		now:      time.Now,
	}
	typing.OnChange(func(users []string) {
		d.notify(domain.Event{Kind: domain.EventTypingChanged, Users: users})
	})
	return d
}

func (d *Dispatcher) OnMessage(body []byte)     { d.dispatch(domain.TopicMessages, body, d.handleMessage) }
func (d *Dispatcher) OnReceipt(body []byte)     { d.dispatch(domain.TopicReceipts, body, d.handleReceipt) }
func (d *Dispatcher) OnStatus(body []byte)      { d.dispatch(domain.TopicStatus, body, d.handleStatus) }
func (d *Dispatcher) OnOnlineUsers(body []byte) { d.dispatch(domain.TopicUsers, body, d.handleOnlineUsers) }
func (d *Dispatcher) OnTyping(body []byte)      { d.dispatch(domain.TopicTyping, body, d.handleTyping) }
func (d *Dispatcher) OnError(body []byte)       { d.dispatch(domain.TopicErrors, body, d.handleError) }

func (d *Dispatcher) dispatch(topic domain.Topic, body []byte, handle func([]byte) error) {
	d.exec(func() {
		defer func() {
			if r := recover(); r != nil {
				d.malformed(topic, fmt.Errorf("handler panic: %v", r))
			}
		}()
		if err := handle(body); err != nil {
			d.malformed(topic, err)
		}
	})
}

func (d *Dispatcher) malformed(topic domain.Topic, err error) {
	wrapped := domain.WrapError(domain.CodeMalformedPayload, "dispatcher - "+topic.String(), err)
	d.log.Warn("dispatcher - dispatch - malformed payload dropped", logging.Topic(topic.String()), logging.Err(err))
	d.notify(domain.Event{Kind: domain.EventErrorReported, Code: domain.CodeMalformedPayload, Err: wrapped.Error()})
}

func (d *Dispatcher) handleMessage(body []byte) error {
	var wire domain.ChatMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return err
	}
	if wire.ID == "" {
		return fmt.Errorf("message without id")
	}
	msg := wire.ToMessage()
	if msg.RoomID == "" {
		msg.RoomID = d.roomID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = d.now()
	}
	if !d.store.ApplyMessage(msg) {
		d.log.Debug("dispatcher - message - duplicate ignored", logging.MessageID(msg.ID))
		return nil
	}
	d.notify(domain.Event{Kind: domain.EventMessagesChanged, MessageID: msg.ID, User: msg.Sender})
	return nil
}

func (d *Dispatcher) handleReceipt(body []byte) error {
	var r domain.ReceiptEvent
	if err := json.Unmarshal(body, &r); err != nil {
		return err
	}
	if r.MessageID == "" {
		return fmt.Errorf("receipt without message id")
	}
	status, ok := domain.ParseDeliveryStatus(r.Status)
	if !ok {
		return fmt.Errorf("receipt status %q", r.Status)
	}
	readers := r.ReadBy
	if status == domain.StatusRead && r.UserID != "" {
		readers = append(readers, r.UserID)
	}
	if !d.store.ApplyReceipt(r.MessageID, status, readers...) {
		return nil
	}
	d.notify(domain.Event{Kind: domain.EventReceiptApplied, MessageID: r.MessageID})
	return nil
}

func (d *Dispatcher) handleStatus(body []byte) error {
	var s domain.StatusEvent
	if err := json.Unmarshal(body, &s); err != nil {
		return err
	}
	var notice string
	switch s.Type {
	case domain.EventUserJoined:
		notice = s.Username + " joined the room"
	case domain.EventUserLeft:
		notice = s.Username + " left the room"
	default:
		return fmt.Errorf("status type %q", s.Type)
	}
	d.notify(domain.Event{Kind: domain.EventUserNotification, User: s.Username, Notice: notice})
	return nil
}

func (d *Dispatcher) handleOnlineUsers(body []byte) error {
	var o domain.OnlineUsersEvent
	if err := json.Unmarshal(body, &o); err != nil {
		return err
	}
	users := d.store.ReplacePresence(o.Users)
	d.notify(domain.Event{Kind: domain.EventPresenceChanged, Users: users})
	return nil
}

func (d *Dispatcher) handleTyping(body []byte) error {
	var t domain.TypingEvent
	if err := json.Unmarshal(body, &t); err != nil {
		return err
	}
	if t.Username == "" {
		return fmt.Errorf("typing event without username")
	}
	if t.Username == d.self {
		return nil
	}
	switch t.Type {
	case domain.EventTypingStart:
		d.typing.Start(t.Username)
	case domain.EventTypingStop:
		d.typing.Stop(t.Username)
	default:
		return fmt.Errorf("typing type %q", t.Type)
	}
	return nil
}

// handleError accepts a JSON object, a JSON string or plain text.
func (d *Dispatcher) handleError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty error frame")
	}
	var p domain.ErrorPayload
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return err
		}
	case '"':
		if err := json.Unmarshal(trimmed, &p.Message); err != nil {
			return err
		}
	default:
		p.Message = string(trimmed)
	}
	d.log.Warn("dispatcher - error - server reported error", "code", p.Code, "message", p.Message)
	d.notify(domain.Event{Kind: domain.EventErrorReported, Code: domain.Code(p.Code), Err: p.Message})
	return nil
}

func (d *Dispatcher) notify(evt domain.Event) {
	evt.RoomID = d.roomID
	if evt.At.IsZero() {
		evt.At = d.now()
	}
	d.notifier.Notify(context.Background(), evt)
}
