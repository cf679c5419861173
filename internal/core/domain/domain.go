package domain

import (
	"time"

	"github.com/dustin/go-humanize"
)

// ConnectionState is the lifecycle stage of the broker connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeliveryStatus is ordered: a later status never downgrades to an earlier one.
type DeliveryStatus int

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusDelivered:
		return "DELIVERED"
	case StatusRead:
		return "READ"
	default:
		return "SENT"
	}
}

// ParseDeliveryStatus accepts the broker spelling of a status.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	switch raw {
	case "SENT", "sent":
		return StatusSent, true
	case "DELIVERED", "delivered":
		return StatusDelivered, true
	case "READ", "read":
		return StatusRead, true
	}
	return StatusSent, false
}

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
)

// Attachment is the reference returned by the upload collaborator.
type Attachment struct {
	ID   string         `json:"id"`
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name"`
	Size int64          `json:"size"`
}

// HumanSize renders the size in binary units ("1.5 KiB").
func (a Attachment) HumanSize() string {
	if a.Size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(a.Size))
}

// Message is a chat entry as held by the session store.
// ID is empty until the broker confirms the message; ClientMsgID correlates
// an optimistic entry with its echo.
type Message struct {
	ID             string
	ClientMsgID    string
	RoomID         string
	Sender         string
	Content        string
	Timestamp      time.Time
	Attachment     *Attachment
	DeliveryStatus DeliveryStatus
	ReadBy         map[string]struct{}
	Pending        bool
}

// Age renders the timestamp relative to now ("3 minutes ago").
func (m Message) Age(now time.Time) string {
	if m.Timestamp.IsZero() || now.Sub(m.Timestamp) < 10*time.Second {
		return "just now"
	}
	return humanize.RelTime(m.Timestamp, now, "ago", "from now")
}

// Clone returns a copy that does not share the ReadBy set or attachment.
func (m Message) Clone() Message {
	out := m
	if m.ReadBy != nil {
		out.ReadBy = make(map[string]struct{}, len(m.ReadBy))
		for u := range m.ReadBy {
			out.ReadBy[u] = struct{}{}
		}
	}
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	return out
}

// Identity is the authenticated user a session acts for.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// File is raw attachment content handed to the upload collaborator.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
