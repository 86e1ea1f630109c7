package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Contact is a counterpart the user exchanges messages with.
type Contact struct {
	ID             int64              `db:"id" json:"id"`
	UserID         int64              `db:"user_id" json:"user_id"`
	PhoneNumber    string             `db:"phone_number" json:"phone_number"`
	Name           *string            `db:"name" json:"name"`
	ProfilePicture *string            `db:"profile_picture" json:"profile_picture"`
	LastMessageAt  *time.Time         `db:"last_message_at" json:"last_message_at"`
	IsBlocked      bool               `db:"is_blocked" json:"is_blocked"`
	Metadata       types.NullJSONText `db:"metadata" json:"metadata"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// DisplayName returns the contact name, falling back to the phone number.
func (c Contact) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.PhoneNumber
}

// NewContact holds the fields accepted when creating a contact.
type NewContact struct {
	UserID         int64
	PhoneNumber    string
	Name           string
	ProfilePicture string
	IsBlocked      bool
	Metadata       types.NullJSONText
}
