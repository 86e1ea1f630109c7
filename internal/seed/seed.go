package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-dashboard/internal/models"
	"chat-dashboard/internal/repositories"
)

type demoMessage struct {
	direction models.Direction
	msgType   models.MessageType
	content   string
	ago       time.Duration
}

type demoConversation struct {
	contact  models.NewContact
	pinned   bool
	archived bool
	messages []demoMessage
}

func demoData(userID int64) []demoConversation {
	return []demoConversation{
		{
			contact: models.NewContact{UserID: userID, PhoneNumber: "+15550100001", Name: "Ana Lima"},
			pinned:  true,
			messages: []demoMessage{
				{models.DirectionOutbound, models.TypeText, "Hi Ana, your order has shipped.", 26 * time.Hour},
				{models.DirectionInbound, models.TypeText, "Great, thanks! When will it arrive?", 3 * time.Hour},
				{models.DirectionInbound, models.TypeImage, "", 2 * time.Hour},
			},
		},
		{
			contact: models.NewContact{UserID: userID, PhoneNumber: "+15550100002"},
			messages: []demoMessage{
				{models.DirectionInbound, models.TypeText, "Is the store open on Sunday?", 40 * time.Minute},
				{models.DirectionOutbound, models.TypeText, "Yes, from 10am to 4pm.", 35 * time.Minute},
			},
		},
		{
			contact:  models.NewContact{UserID: userID, PhoneNumber: "+15550100003", Name: "Blocked Sender", IsBlocked: true},
			archived: true,
			messages: []demoMessage{
				{models.DirectionInbound, models.TypeText, "Limited offer, click here", 72 * time.Hour},
			},
		},
	}
}

// Store is the persistence the seeder writes through.
type Store struct {
	Contacts      repositories.ContactRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
}

// Run creates demo contacts, conversations and messages for userID. It does
// nothing when the user already has contacts.
func Run(ctx context.Context, store Store, userID int64, now time.Time, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	existing, err := store.Contacts.ListContacts(ctx, userID, false)
	if err != nil {
		return fmt.Errorf("check existing contacts: %w", err)
	}
	if len(existing) > 0 {
		log.Info("demo data already present", "user_id", userID, "contacts", len(existing))
		return nil
	}

	for _, demo := range demoData(userID) {
		contact, err := store.Contacts.CreateContact(ctx, demo.contact)
		if err != nil {
			return fmt.Errorf("seed contact %s: %w", demo.contact.PhoneNumber, err)
		}
		conv, err := store.Conversations.CreateConversation(ctx, userID, contact.ID)
		if err != nil {
			return fmt.Errorf("seed conversation for contact %d: %w", contact.ID, err)
		}
		for _, m := range demo.messages {
			sentAt := now.Add(-m.ago)
			in := models.NewMessage{
				ConversationID: conv.ID,
				Direction:      m.direction,
				Type:           m.msgType,
				Content:        m.content,
				SentAt:         sentAt,
			}
			if m.direction == models.DirectionOutbound {
				in.DeliveredAt = &sentAt
			}
			if _, err := store.Messages.AppendMessage(ctx, in); err != nil {
				return fmt.Errorf("seed message for conversation %d: %w", conv.ID, err)
			}
		}
		if demo.pinned || demo.archived {
			pinned, archived := demo.pinned, demo.archived
			flags := models.ConversationFlags{IsPinned: &pinned, IsArchived: &archived}
			if err := store.Conversations.UpdateFlags(ctx, conv.ID, userID, flags); err != nil {
				return fmt.Errorf("seed flags for conversation %d: %w", conv.ID, err)
			}
		}
	}
	log.Info("demo data seeded", "user_id", userID)
	return nil
}
