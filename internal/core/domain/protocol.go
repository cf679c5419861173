package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Topic is a logical inbound channel; Destination maps it onto the broker.
type Topic int

const (
	TopicMessages Topic = iota
	TopicReceipts
	TopicStatus
	TopicUsers
	TopicTyping
	TopicErrors
)

// Topics lists every topic a room session subscribes to.
var Topics = []Topic{TopicMessages, TopicReceipts, TopicStatus, TopicUsers, TopicTyping, TopicErrors}

func (t Topic) String() string {
	switch t {
	case TopicMessages:
		return "messages"
	case TopicReceipts:
		return "receipts"
	case TopicStatus:
		return "status"
	case TopicUsers:
		return "users"
	case TopicTyping:
		return "typing"
	case TopicErrors:
		return "errors"
	default:
		return "unknown"
	}
}

// Destination returns the broker destination of t for roomID.
func (t Topic) Destination(roomID string) string {
	switch t {
	case TopicMessages:
		return "/topic/room/" + roomID
	case TopicReceipts:
		return "/topic/room/" + roomID + "/receipts"
	case TopicStatus:
		return "/topic/room/" + roomID + "/status"
	case TopicUsers:
		return "/topic/room/" + roomID + "/users"
	case TopicTyping:
		return "/topic/room/" + roomID + "/typing"
	case TopicErrors:
		return "/user/queue/errors"
	default:
		return ""
	}
}

// Outbound destinations.
func SendMessageDestination(roomID string) string { return "/app/sendMessage/" + roomID }
func JoinDestination(roomID string) string        { return "/app/join/" + roomID }
func LeaveDestination(roomID string) string       { return "/app/leave/" + roomID }
func TypingStartDestination(roomID string) string { return "/app/typing/start/" + roomID }
func TypingStopDestination(roomID string) string  { return "/app/typing/stop/" + roomID }

const (
	EventUserJoined  = "USER_JOINED"
	EventUserLeft    = "USER_LEFT"
	EventTypingStart = "TYPING_START"
	EventTypingStop  = "TYPING_STOP"
)

// ChatMessage is the payload on the messages topic and in history responses.
type ChatMessage struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"roomId,omitempty"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	ClientMsgID string      `json:"clientMsgId,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Status      string      `json:"status,omitempty"`
	ReadBy      []string    `json:"readBy,omitempty"`
	Timestamp   time.Time   `json:"-"`
}

func (c *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias ChatMessage
	var raw struct {
		alias
		Timestamp json.RawMessage `json:"timestamp"`
		TimeStamp json.RawMessage `json:"timeStamp"`
		CreatedAt json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ChatMessage(raw.alias)
	for _, candidate := range []json.RawMessage{raw.Timestamp, raw.TimeStamp, raw.CreatedAt} {
		if len(candidate) == 0 || bytes.Equal(candidate, []byte("null")) {
			continue
		}
		ts, err := parseTimestamp(candidate)
		if err != nil {
			return err
		}
		c.Timestamp = ts
		break
	}
	return nil
}

// ToMessage converts the wire shape into a store entry.
func (c ChatMessage) ToMessage() Message {
	status, _ := ParseDeliveryStatus(c.Status)
	msg := Message{
		ID:             c.ID,
		ClientMsgID:    c.ClientMsgID,
		RoomID:         c.RoomID,
		Sender:         c.Sender,
		Content:        c.Content,
		Timestamp:      c.Timestamp,
		DeliveryStatus: status,
		ReadBy:         make(map[string]struct{}, len(c.ReadBy)),
	}
	for _, u := range c.ReadBy {
		msg.ReadBy[u] = struct{}{}
	}
	if c.Attachment != nil {
		a := *c.Attachment
		msg.Attachment = &a
	}
	return msg
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC3339, zone-less ISO local date-times and epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		ms, nerr := strconv.ParseInt(string(raw), 10, 64)
		if nerr != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unrecognised format %q", s)
}

// ReceiptEvent updates the delivery status of one message.
type ReceiptEvent struct {
	MessageID string   `json:"messageId"`
	Status    string   `json:"status"`
	ReadBy    []string `json:"readBy,omitempty"`
	UserID    string   `json:"userId,omitempty"`
}

// StatusEvent announces a join or leave; it never mutates presence.
type StatusEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// OnlineUsersEvent is a full presence snapshot.
type OnlineUsersEvent struct {
	Users []string `json:"users"`
}

func (o *OnlineUsersEvent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		o.Users = nil
		return json.Unmarshal(trimmed, &o.Users)
	}
	var raw struct {
		Users *[]string `json:"users"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	if raw.Users == nil {
		return fmt.Errorf("online users: missing users field")
	}
	o.Users = *raw.Users
	return nil
}

type TypingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ErrorPayload is pushed on the user-private error queue.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// SendMessageRequest is published to /app/sendMessage/{roomId}. The sender is
// resolved server side from the authenticated principal.
type SendMessageRequest struct {
	RoomID      string      `json:"roomId"`
	Content     string      `json:"content"`
	ClientMsgID string      `json:"clientMsgId"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

type TypingRequest struct {
	RoomID string `json:"roomId"`
	Type   string `json:"type"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}
