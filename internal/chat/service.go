package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-dashboard/internal/models"
	"chat-dashboard/internal/observability"
	"chat-dashboard/internal/repositories"
)

var tracer = otel.Tracer("chat-dashboard/chat")

// EventPublisher sends domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Broadcaster pushes realtime updates to clients watching a conversation.
type Broadcaster interface {
	BroadcastMessage(conversationID int64, msg models.Message)
	BroadcastStatus(conversationID int64, msg models.Message)
	BroadcastRead(conversationID int64, marked int64)
}

// Options configures a Service. Nil collaborators are replaced by no-ops.
type Options struct {
	SimulateDelivery bool
	Publisher        EventPublisher
	Broadcaster      Broadcaster
	Logger           *slog.Logger
}

// Service implements the conversation operations of the dashboard.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	publisher     EventPublisher
	broadcaster   Broadcaster
	logger        *slog.Logger
	validate      *validator.Validate
	simulate      bool

	now           func() time.Time
	newExternalID func() string
}

// NewService builds a Service over the given repositories.
func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, opts Options) *Service {
	s := &Service{
		conversations: conversations,
		messages:      messages,
		publisher:     opts.Publisher,
		broadcaster:   opts.Broadcaster,
		logger:        opts.Logger,
		validate:      newValidator(),
		simulate:      opts.SimulateDelivery,
		now:           func() time.Time { return time.Now().UTC() },
		newExternalID: func() string { return "msg_" + uuid.NewString() },
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.broadcaster == nil {
		s.broadcaster = nopBroadcaster{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ConversationDetail is an opened conversation with its full history.
type ConversationDetail struct {
	models.ConversationWithContact
	Messages []models.Message `json:"messages"`
}

// SendMessageInput is the accepted shape of an outbound message.
type SendMessageInput struct {
	ConversationID int64              `json:"conversation_id" form:"conversation_id" validate:"required,gt=0"`
	Content        string             `json:"content" form:"content" validate:"required,max=4096"`
	Type           models.MessageType `json:"type" form:"type" validate:"omitempty,oneof=text image audio video document sticker location"`
}

// ListConversations returns the user's non-archived conversations, pinned
// first and then by most recent activity.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	ctx, span := tracer.Start(ctx, "chat.ListConversations", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	list, err := s.conversations.ListConversations(ctx, models.ConversationFilter{UserID: userID})
	if err != nil {
		return nil, fail(span, fmt.Errorf("list conversations: %w", err))
	}
	span.SetAttributes(attribute.Int("conversations.count", len(list)))
	return list, nil
}

// GetConversation returns the conversation when the user owns it.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID int64) (models.ConversationWithContact, error) {
	conv, err := s.conversations.GetConversationForUser(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.ConversationWithContact{}, ErrNotFound
	}
	if err != nil {
		return models.ConversationWithContact{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// OpenConversation marks the conversation read and returns it with every
// message, oldest first.
func (s *Service) OpenConversation(ctx context.Context, userID, conversationID int64) (ConversationDetail, error) {
	ctx, span := tracer.Start(ctx, "chat.OpenConversation", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("conversation.id", conversationID),
	))
	defer span.End()

	marked, err := s.conversations.MarkRead(ctx, conversationID, userID, s.now())
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return ConversationDetail{}, ErrNotFound
	}
	if err != nil {
		return ConversationDetail{}, fail(span, fmt.Errorf("mark conversation read: %w", err))
	}
	observability.IncConversationRead(marked)
	span.SetAttributes(attribute.Int64("messages.marked_read", marked))

	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return ConversationDetail{}, fail(span, err)
	}
	msgs, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, fail(span, fmt.Errorf("load messages: %w", err))
	}

	if marked > 0 {
		s.broadcaster.BroadcastRead(conversationID, marked)
		s.publish(ctx, observability.EventConversationRead, map[string]any{
			"conversation_id": conversationID,
			"user_id":         userID,
			"marked":          marked,
		})
	}
	return ConversationDetail{ConversationWithContact: conv, Messages: msgs}, nil
}

// SendMessage validates the input and stores an outbound message.
func (s *Service) SendMessage(ctx context.Context, userID int64, in SendMessageInput) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.SendMessage", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("conversation.id", in.ConversationID),
	))
	defer span.End()

	in.Content = strings.TrimSpace(in.Content)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return models.Message{}, toValidationError(err)
	}
	if in.Type == "" {
		in.Type = models.TypeText
	}

	if _, err := s.GetConversation(ctx, userID, in.ConversationID); err != nil {
		return models.Message{}, err
	}

	now := s.now()
	draft := models.NewMessage{
		ConversationID:    in.ConversationID,
		ExternalMessageID: s.newExternalID(),
		Direction:         models.DirectionOutbound,
		Type:              in.Type,
		Content:           in.Content,
		SentAt:            now,
	}
	if s.simulate {
		draft.DeliveredAt = &now
	}

	msg, err := s.messages.AppendMessage(ctx, draft)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, fail(span, fmt.Errorf("append message: %w", err))
	}

	observability.IncMessageSent(string(msg.Type))
	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	s.broadcaster.BroadcastMessage(in.ConversationID, msg)
	s.publish(ctx, observability.EventMessageSent, msg)
	return msg, nil
}

// UpdateConversation changes the pinned and archived flags.
func (s *Service) UpdateConversation(ctx context.Context, userID, conversationID int64, flags models.ConversationFlags) error {
	if flags.Empty() {
		return &ValidationError{Fields: map[string]string{"flags": "At least one of is_pinned or is_archived is required."}}
	}
	err := s.conversations.UpdateFlags(ctx, conversationID, userID, flags)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	envelope := observability.EventEnvelope{
		EventType:  "chat_events",
		EventName:  routingKey,
		OccurredAt: s.now().Format(time.RFC3339Nano),
		RequestID:  observability.RequestIDFromContext(ctx),
		Payload:    payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}
	if err := s.publisher.Publish(ctx, routingKey, envelope); err != nil {
		observability.IncAMQPPublishError()
		s.logger.WarnContext(ctx, "event publish failed", "routing_key", routingKey, "error", err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastMessage(int64, models.Message) {}
func (nopBroadcaster) BroadcastStatus(int64, models.Message)  {}
func (nopBroadcaster) BroadcastRead(int64, int64)             {}
