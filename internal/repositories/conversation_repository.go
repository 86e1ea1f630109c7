package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"chat-dashboard/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence. Every lookup is
// scoped by the owning user, so a conversation of another user is reported as
// not found.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, userID int64, contactID int64) (models.Conversation, error)
	ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.ConversationSummary, error)
	GetConversationForUser(ctx context.Context, conversationID int64, userID int64) (models.ConversationWithContact, error)
	MarkRead(ctx context.Context, conversationID int64, userID int64, at time.Time) (int64, error)
	UpdateFlags(ctx context.Context, conversationID int64, userID int64, flags models.ConversationFlags) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation opens a thread between a user and one of their contacts.
func (r *ConversationRepo) CreateConversation(ctx context.Context, userID int64, contactID int64) (models.Conversation, error) {
	var id int64
	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO conversations (user_id, contact_id) VALUES (?, ?) RETURNING id`), userID, contactID).
		Scan(&id); err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, r.db.Rebind(`SELECT id, user_id, contact_id, last_message_at, unread_count, is_archived, is_pinned, created_at
        FROM conversations WHERE id = ?`), id)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("reload conversation: %w", err)
	}
	return conv, nil
}

// conversationRow is the flat shape of a conversation joined with its contact
// and, for listings, its latest message.
type conversationRow struct {
	ID            int64      `db:"id"`
	UserID        int64      `db:"user_id"`
	ContactID     int64      `db:"contact_id"`
	LastMessageAt *time.Time `db:"last_message_at"`
	UnreadCount   int        `db:"unread_count"`
	IsArchived    bool       `db:"is_archived"`
	IsPinned      bool       `db:"is_pinned"`
	CreatedAt     time.Time  `db:"created_at"`

	ContactPhone         string             `db:"contact_phone_number"`
	ContactName          *string            `db:"contact_name"`
	ContactPicture       *string            `db:"contact_profile_picture"`
	ContactLastMessageAt *time.Time         `db:"contact_last_message_at"`
	ContactBlocked       bool               `db:"contact_is_blocked"`
	ContactMetadata      types.NullJSONText `db:"contact_metadata"`
	ContactCreatedAt     time.Time          `db:"contact_created_at"`

	MessageID          sql.NullInt64      `db:"lm_id"`
	MessageExternalID  *string            `db:"lm_external_message_id"`
	MessageDirection   sql.NullString     `db:"lm_direction"`
	MessageType        sql.NullString     `db:"lm_type"`
	MessageContent     *string            `db:"lm_content"`
	MessageMetadata    types.NullJSONText `db:"lm_metadata"`
	MessageStatus      sql.NullString     `db:"lm_status"`
	MessageSentAt      *time.Time         `db:"lm_sent_at"`
	MessageDeliveredAt *time.Time         `db:"lm_delivered_at"`
	MessageReadAt      *time.Time         `db:"lm_read_at"`
	MessageCreatedAt   *time.Time         `db:"lm_created_at"`
}

func (row conversationRow) withContact() models.ConversationWithContact {
	return models.ConversationWithContact{
		Conversation: models.Conversation{
			ID:            row.ID,
			UserID:        row.UserID,
			ContactID:     row.ContactID,
			LastMessageAt: row.LastMessageAt,
			UnreadCount:   row.UnreadCount,
			IsArchived:    row.IsArchived,
			IsPinned:      row.IsPinned,
			CreatedAt:     row.CreatedAt,
		},
		Contact: models.Contact{
			ID:             row.ContactID,
			UserID:         row.UserID,
			PhoneNumber:    row.ContactPhone,
			Name:           row.ContactName,
			ProfilePicture: row.ContactPicture,
			LastMessageAt:  row.ContactLastMessageAt,
			IsBlocked:      row.ContactBlocked,
			Metadata:       row.ContactMetadata,
			CreatedAt:      row.ContactCreatedAt,
		},
	}
}

func (row conversationRow) lastMessage() *models.Message {
	if !row.MessageID.Valid {
		return nil
	}
	msg := &models.Message{
		ID:                row.MessageID.Int64,
		ConversationID:    row.ID,
		ExternalMessageID: row.MessageExternalID,
		Direction:         models.Direction(row.MessageDirection.String),
		Type:              models.MessageType(row.MessageType.String),
		Content:           row.MessageContent,
		Metadata:          row.MessageMetadata,
		Status:            models.MessageStatus(row.MessageStatus.String),
		DeliveredAt:       row.MessageDeliveredAt,
		ReadAt:            row.MessageReadAt,
	}
	if row.MessageSentAt != nil {
		msg.SentAt = *row.MessageSentAt
	}
	if row.MessageCreatedAt != nil {
		msg.CreatedAt = *row.MessageCreatedAt
	}
	return msg
}

const conversationSelect = `SELECT c.id, c.user_id, c.contact_id, c.last_message_at, c.unread_count,
        c.is_archived, c.is_pinned, c.created_at,
        ct.phone_number AS contact_phone_number, ct.name AS contact_name,
        ct.profile_picture AS contact_profile_picture, ct.last_message_at AS contact_last_message_at,
        ct.is_blocked AS contact_is_blocked, ct.metadata AS contact_metadata, ct.created_at AS contact_created_at`

// ListConversations returns the user's conversations with contact and latest
// message, pinned first and then most recently active first.
func (r *ConversationRepo) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.ConversationSummary, error) {
	query := conversationSelect + `,
        lm.id AS lm_id, lm.external_message_id AS lm_external_message_id, lm.direction AS lm_direction,
        lm.type AS lm_type, lm.content AS lm_content, lm.metadata AS lm_metadata, lm.status AS lm_status,
        lm.sent_at AS lm_sent_at, lm.delivered_at AS lm_delivered_at, lm.read_at AS lm_read_at,
        lm.created_at AS lm_created_at
        FROM conversations c
        JOIN contacts ct ON ct.id = c.contact_id
        LEFT JOIN messages lm ON lm.id = (
            SELECT m.id FROM messages m WHERE m.conversation_id = c.id
            ORDER BY m.sent_at DESC, m.id DESC LIMIT 1
        )
        WHERE c.user_id = ? AND c.is_archived = ?
        ORDER BY c.is_pinned DESC, c.last_message_at IS NULL, c.last_message_at DESC, c.id DESC`

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), filter.UserID, filter.Archived)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	result := []models.ConversationSummary{}
	for rows.Next() {
		var row conversationRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		result = append(result, models.ConversationSummary{
			ConversationWithContact: row.withContact(),
			LastMessage:             row.lastMessage(),
		})
	}
	return result, rows.Err()
}

// GetConversationForUser fetches a conversation and its contact when it belongs
// to the user.
func (r *ConversationRepo) GetConversationForUser(ctx context.Context, conversationID int64, userID int64) (models.ConversationWithContact, error) {
	query := conversationSelect + `
        FROM conversations c
        JOIN contacts ct ON ct.id = c.contact_id
        WHERE c.id = ? AND c.user_id = ?`
	var row conversationRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationWithContact{}, ErrConversationNotFound
	}
	if err != nil {
		return models.ConversationWithContact{}, fmt.Errorf("get conversation: %w", err)
	}
	return row.withContact(), nil
}

// MarkRead resets the unread counter and marks every unread inbound message as
// read, in one transaction. Failed messages keep their terminal status. It
// returns the number of messages updated.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID int64, userID int64, at time.Time) (int64, error) {
	var updated int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := ensureOwned(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET unread_count = 0 WHERE id = ?`), conversationID); err != nil {
			return fmt.Errorf("reset unread count: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET read_at = ?, status = ?
            WHERE conversation_id = ? AND direction = ? AND read_at IS NULL AND status <> ?`),
			at, models.StatusRead, conversationID, models.DirectionInbound, models.StatusFailed)
		if err != nil {
			return fmt.Errorf("mark messages read: %w", err)
		}
		updated, err = res.RowsAffected()
		return err
	})
	return updated, err
}

// UpdateFlags sets the pinned and archived flags that are present in flags.
func (r *ConversationRepo) UpdateFlags(ctx context.Context, conversationID int64, userID int64, flags models.ConversationFlags) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := ensureOwned(ctx, tx, conversationID, userID); err != nil {
			return err
		}
		if flags.IsPinned != nil {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET is_pinned = ? WHERE id = ?`), *flags.IsPinned, conversationID); err != nil {
				return fmt.Errorf("update pinned: %w", err)
			}
		}
		if flags.IsArchived != nil {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET is_archived = ? WHERE id = ?`), *flags.IsArchived, conversationID); err != nil {
				return fmt.Errorf("update archived: %w", err)
			}
		}
		return nil
	})
}

func ensureOwned(ctx context.Context, tx *sqlx.Tx, conversationID int64, userID int64) error {
	var exists bool
	err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ? AND user_id = ?)`), conversationID, userID)
	if err != nil {
		return fmt.Errorf("check conversation owner: %w", err)
	}
	if !exists {
		return ErrConversationNotFound
	}
	return nil
}
