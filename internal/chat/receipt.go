package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-dashboard/internal/models"
	"chat-dashboard/internal/observability"
	"chat-dashboard/internal/repositories"
)

// Receipt is a delivery report for a message sent earlier.
type Receipt struct {
	ExternalMessageID string               `json:"external_message_id"`
	Status            models.MessageStatus `json:"status"`
	OccurredAt        time.Time            `json:"occurred_at"`
}

// ApplyReceipt moves the referenced message forward in its delivery state.
// The boolean result is false when the receipt would not advance the message.
func (s *Service) ApplyReceipt(ctx context.Context, r Receipt) (models.Message, bool, error) {
	ctx, span := tracer.Start(ctx, "chat.ApplyReceipt", trace.WithAttributes(
		attribute.String("message.external_id", r.ExternalMessageID),
		attribute.String("receipt.status", string(r.Status)),
	))
	defer span.End()

	if r.ExternalMessageID == "" || !r.Status.Valid() || r.Status == models.StatusSent {
		observability.IncReceipt(string(r.Status), "invalid")
		return models.Message{}, false, ErrInvalidReceipt
	}
	at := r.OccurredAt.UTC()
	if r.OccurredAt.IsZero() {
		at = s.now()
	}

	msg, applied, err := s.messages.ApplyStatus(ctx, r.ExternalMessageID, r.Status, at)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		observability.IncReceipt(string(r.Status), "unknown")
		return models.Message{}, false, ErrUnknownMessage
	}
	if err != nil {
		observability.IncReceipt(string(r.Status), "error")
		return models.Message{}, false, fail(span, fmt.Errorf("apply receipt: %w", err))
	}
	if !applied {
		observability.IncReceipt(string(r.Status), "ignored")
		return msg, false, nil
	}

	observability.IncReceipt(string(r.Status), "applied")
	s.broadcaster.BroadcastStatus(msg.ConversationID, msg)
	s.publish(ctx, observability.EventMessageStatus, msg)
	return msg, true, nil
}
