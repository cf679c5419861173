package domain

import "time"

// EventKind classifies what a session reports to its presentation layer.
type EventKind string

const (
	EventStateChanged     EventKind = "state_changed"
	EventMessagesChanged  EventKind = "messages_changed"
	EventReceiptApplied   EventKind = "receipt_applied"
	EventPresenceChanged  EventKind = "presence_changed"
	EventTypingChanged    EventKind = "typing_changed"
	EventUserNotification EventKind = "user_notification"
	EventErrorReported    EventKind = "error_reported"
	EventAuthFailed       EventKind = "auth_failed"
)

// Event is a read-only notification; it never carries mutable store state.
type Event struct {
	Kind      EventKind       `json:"kind"`
	RoomID    string          `json:"room_id"`
	At        time.Time       `json:"at"`
	State     ConnectionState `json:"state"`
	Previous  ConnectionState `json:"previous"`
	User      string          `json:"user,omitempty"`
	Notice    string          `json:"notice,omitempty"`
	Users     []string        `json:"users,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Code      Code            `json:"code,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// StateEvent is emitted by the connection manager on every transition.
type StateEvent struct {
	Old   ConnectionState
	New   ConnectionState
	Cause error
}
