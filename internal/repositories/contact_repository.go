package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-dashboard/internal/models"
)

var ErrContactNotFound = errors.New("contact not found")

// ContactRepository abstracts contact persistence.
type ContactRepository interface {
	CreateContact(ctx context.Context, in models.NewContact) (models.Contact, error)
	GetContact(ctx context.Context, contactID int64) (models.Contact, error)
	ListContacts(ctx context.Context, userID int64, activeOnly bool) ([]models.Contact, error)
}

// ContactRepo is a sqlx implementation of ContactRepository.
type ContactRepo struct {
	db *sqlx.DB
}

// NewContactRepo constructs a ContactRepo.
func NewContactRepo(db *sqlx.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

const contactColumns = `id, user_id, phone_number, name, profile_picture, last_message_at, is_blocked, metadata, created_at`

// CreateContact inserts a contact.
func (r *ContactRepo) CreateContact(ctx context.Context, in models.NewContact) (models.Contact, error) {
	var id int64
	query := r.db.Rebind(`INSERT INTO contacts (user_id, phone_number, name, profile_picture, is_blocked, metadata)
        VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	err := r.db.QueryRowxContext(ctx, query, in.UserID, in.PhoneNumber, nullableString(in.Name), nullableString(in.ProfilePicture), in.IsBlocked, in.Metadata).
		Scan(&id)
	if err != nil {
		return models.Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return r.GetContact(ctx, id)
}

// GetContact fetches a contact by id.
func (r *ContactRepo) GetContact(ctx context.Context, contactID int64) (models.Contact, error) {
	var contact models.Contact
	err := r.db.GetContext(ctx, &contact, r.db.Rebind(`SELECT `+contactColumns+` FROM contacts WHERE id=?`), contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, ErrContactNotFound
	}
	return contact, err
}

// ListContacts returns the user's contacts, most recently active first.
func (r *ContactRepo) ListContacts(ctx context.Context, userID int64, activeOnly bool) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id=?`
	if activeOnly {
		query += ` AND is_blocked = FALSE`
	}
	query += ` ORDER BY last_message_at IS NULL, last_message_at DESC, id DESC`

	var contacts []models.Contact
	if err := r.db.SelectContext(ctx, &contacts, r.db.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}
