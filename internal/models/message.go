package models

import (
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx/types"
)

// Direction tells whether a message came from the contact or the user.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType is the WhatsApp payload kind of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeLocation MessageType = "location"
)

// MessageTypes lists every accepted message type.
var MessageTypes = []MessageType{TypeText, TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeSticker, TypeLocation}

// Valid reports whether t is one of MessageTypes.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label is the fixed preview text shown for non-text messages.
func (t MessageType) Label() string {
	switch t {
	case TypeImage:
		return "Image"
	case TypeAudio:
		return "Audio"
	case TypeVideo:
		return "Video"
	case TypeDocument:
		return "Document"
	case TypeSticker:
		return "Sticker"
	case TypeLocation:
		return "Location"
	default:
		return "Message"
	}
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	return s == StatusFailed || s.rank() > 0
}

// CanTransitionTo reports whether moving from s to next is a forward step of
// sent -> delivered -> read. Failed is terminal and reachable from sent or delivered.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s == StatusFailed || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return s == StatusSent || s == StatusDelivered
	}
	return next.rank() > s.rank()
}

// DefaultPreviewLength is the number of characters kept in a text preview.
const DefaultPreviewLength = 50

const previewEllipsis = "…"

// Message is a single inbound or outbound item of a conversation.
type Message struct {
	ID                int64              `db:"id" json:"id"`
	ConversationID    int64              `db:"conversation_id" json:"conversation_id"`
	ExternalMessageID *string            `db:"external_message_id" json:"external_message_id,omitempty"`
	Direction         Direction          `db:"direction" json:"direction"`
	Type              MessageType        `db:"type" json:"type"`
	Content           *string            `db:"content" json:"content"`
	Metadata          types.NullJSONText `db:"metadata" json:"metadata"`
	Status            MessageStatus      `db:"status" json:"status"`
	SentAt            time.Time          `db:"sent_at" json:"sent_at"`
	DeliveredAt       *time.Time         `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time         `db:"read_at" json:"read_at,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// IsFromUser reports whether the dashboard user sent the message.
func (m Message) IsFromUser() bool {
	return m.Direction == DirectionOutbound
}

// IsFromContact reports whether the contact sent the message.
func (m Message) IsFromContact() bool {
	return m.Direction == DirectionInbound
}

// Preview renders a short summary for list display. Text content longer than
// length characters is cut and suffixed with an ellipsis; other types, and
// text messages without content, render as their type label.
func (m Message) Preview(length int) string {
	if length <= 0 {
		length = DefaultPreviewLength
	}
	if m.Type != TypeText || m.Content == nil || *m.Content == "" {
		return m.Type.Label()
	}
	content := *m.Content
	if utf8.RuneCountInString(content) <= length {
		return content
	}
	return string([]rune(content)[:length]) + previewEllipsis
}

// NewMessage carries the fields a caller may set when appending a message.
// DeliveredAt, when set, moves the fresh message from sent to delivered in
// the same write.
type NewMessage struct {
	ConversationID    int64
	ExternalMessageID string
	Direction         Direction
	Type              MessageType
	Content           string
	Metadata          types.NullJSONText
	SentAt            time.Time
	DeliveredAt       *time.Time
}
