package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-dashboard/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	GetMessageByExternalID(ctx context.Context, externalID string) (models.Message, error)
	ApplyStatus(ctx context.Context, externalID string, next models.MessageStatus, at time.Time) (models.Message, bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, external_message_id, direction, type, content, metadata,
        status, sent_at, delivered_at, read_at, created_at`

// AppendMessage stores a message and moves the conversation and contact
// last_message_at to its sent_at. Inbound messages also bump the unread
// counter. All writes share one transaction.
func (r *MessageRepo) AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	var msg models.Message
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var contactID int64
		err := tx.GetContext(ctx, &contactID, tx.Rebind(`SELECT contact_id FROM conversations WHERE id = ?`), in.ConversationID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConversationNotFound
		}
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}

		var content *string
		if in.Content != "" {
			content = &in.Content
		}
		insert := tx.Rebind(`INSERT INTO messages (conversation_id, external_message_id, direction, type, content, metadata, status, sent_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
		var id int64
		if err := tx.QueryRowxContext(ctx, insert, in.ConversationID, nullableString(in.ExternalMessageID), in.Direction, in.Type,
			content, in.Metadata, models.StatusSent, in.SentAt).Scan(&id); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := tx.GetContext(ctx, &msg, tx.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id); err != nil {
			return fmt.Errorf("reload message: %w", err)
		}

		if in.DeliveredAt != nil {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET status = ?, delivered_at = ? WHERE id = ?`),
				models.StatusDelivered, *in.DeliveredAt, msg.ID); err != nil {
				return fmt.Errorf("mark message delivered: %w", err)
			}
			msg.Status = models.StatusDelivered
			deliveredAt := *in.DeliveredAt
			msg.DeliveredAt = &deliveredAt
		}

		convUpdate := `UPDATE conversations SET last_message_at = ? WHERE id = ?`
		if in.Direction == models.DirectionInbound {
			convUpdate = `UPDATE conversations SET last_message_at = ?, unread_count = unread_count + 1 WHERE id = ?`
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(convUpdate), msg.SentAt, in.ConversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE contacts SET last_message_at = ? WHERE id = ?`), msg.SentAt, contactID); err != nil {
			return fmt.Errorf("touch contact: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the conversation history, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY sent_at ASC, id ASC`)
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// GetMessageByExternalID looks a message up by its WhatsApp message id.
func (r *MessageRepo) GetMessageByExternalID(ctx context.Context, externalID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE external_message_id = ?`), externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ApplyStatus moves a message forward in the delivery state machine. The
// boolean result is false, with no write, when next is not a forward step
// from the stored status.
func (r *MessageRepo) ApplyStatus(ctx context.Context, externalID string, next models.MessageStatus, at time.Time) (models.Message, bool, error) {
	var (
		msg     models.Message
		applied bool
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &msg, tx.Rebind(`SELECT `+messageColumns+` FROM messages WHERE external_message_id = ?`), externalID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("load message: %w", err)
		}
		if !msg.Status.CanTransitionTo(next) {
			return nil
		}

		var (
			update string
			args   []any
		)
		switch next {
		case models.StatusDelivered:
			update = `UPDATE messages SET status = ?, delivered_at = COALESCE(delivered_at, ?) WHERE id = ?`
			args = []any{next, at, msg.ID}
		case models.StatusRead:
			update = `UPDATE messages SET status = ?, delivered_at = COALESCE(delivered_at, ?), read_at = COALESCE(read_at, ?) WHERE id = ?`
			args = []any{next, at, at, msg.ID}
		default:
			update = `UPDATE messages SET status = ? WHERE id = ?`
			args = []any{next, msg.ID}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(update), args...); err != nil {
			return fmt.Errorf("update message status: %w", err)
		}

		msg.Status = next
		if next == models.StatusDelivered || next == models.StatusRead {
			if msg.DeliveredAt == nil {
				msg.DeliveredAt = &at
			}
		}
		if next == models.StatusRead && msg.ReadAt == nil {
			msg.ReadAt = &at
		}
		applied = true
		return nil
	})
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, applied, nil
}
