package models

import "time"

// Conversation is the thread between one user and one contact.
type Conversation struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	ContactID     int64      `db:"contact_id" json:"contact_id"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int        `db:"unread_count" json:"unread_count"`
	IsArchived    bool       `db:"is_archived" json:"is_archived"`
	IsPinned      bool       `db:"is_pinned" json:"is_pinned"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ConversationWithContact is a conversation joined with its contact.
type ConversationWithContact struct {
	Conversation
	Contact Contact `json:"contact"`
}

// ConversationSummary is one row of the conversation list: the conversation,
// its contact and the most recent message, if any.
type ConversationSummary struct {
	ConversationWithContact
	LastMessage *Message `json:"last_message"`
}

// ConversationFilter selects the conversations of a user by archive state.
type ConversationFilter struct {
	UserID   int64
	Archived bool
}

// ConversationFlags is a partial update of the user-controlled flags.
type ConversationFlags struct {
	IsPinned   *bool `json:"is_pinned"`
	IsArchived *bool `json:"is_archived"`
}

// Empty reports whether no flag is set.
func (f ConversationFlags) Empty() bool {
	return f.IsPinned == nil && f.IsArchived == nil
}
