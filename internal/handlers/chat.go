package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/middleware"
	"chat-dashboard/internal/models"
	"chat-dashboard/internal/telemetry"
	"chat-dashboard/internal/views"
)

// ChatService is the conversation logic the handlers depend on.
type ChatService interface {
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	OpenConversation(ctx context.Context, userID, conversationID int64) (chat.ConversationDetail, error)
	SendMessage(ctx context.Context, userID int64, in chat.SendMessageInput) (models.Message, error)
	UpdateConversation(ctx context.Context, userID, conversationID int64, flags models.ConversationFlags) error
}

// ChatHandler serves the dashboard endpoints.
type ChatHandler struct {
	service       ChatService
	audit         *telemetry.AuditEmitter
	previewLength int
	location      *time.Location
	now           func() time.Time
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(service ChatService, audit *telemetry.AuditEmitter, previewLength int) *ChatHandler {
	return &ChatHandler{
		service:       service,
		audit:         audit,
		previewLength: previewLength,
		location:      time.UTC,
		now:           time.Now,
	}
}

// Index lists the user's conversations and, when the conversation query
// parameter is present, opens that conversation.
func (h *ChatHandler) Index(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()
	now := h.now()

	var selected *views.ThreadView
	if raw, ok := c.GetQuery("conversation"); ok {
		conversationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		detail, err := h.service.OpenConversation(ctx, userID, conversationID)
		if err != nil {
			h.respondError(c, err, "failed to open conversation")
			return
		}
		thread := views.Thread(detail, now, h.location)
		selected = &thread
	}

	list, err := h.service.ListConversations(ctx, userID)
	if err != nil {
		h.respondError(c, err, "failed to load conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations":         views.ConversationList(list, now, h.previewLength),
		"selected_conversation": selected,
	})
}

// StoreMessage validates and stores an outbound message, then redirects back
// to the conversation.
func (h *ChatHandler) StoreMessage(c *gin.Context) {
	var in chat.SendMessageInput
	if err := c.ShouldBind(&in); err != nil {
		if verr := messageBindError(err); verr != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verr.Fields})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": gin.H{"request": "The request body could not be parsed."}})
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		h.respondError(c, err, "failed to send message")
		return
	}

	emitAudit(c, h.audit, "message.sent", fmt.Sprintf("message %d sent", msg.ID), in.ConversationID)
	c.Redirect(http.StatusFound, fmt.Sprintf("/chat?conversation=%d", in.ConversationID))
}

// UpdateConversation pins, unpins, archives or restores a conversation.
func (h *ChatHandler) UpdateConversation(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var flags models.ConversationFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.service.UpdateConversation(c.Request.Context(), middleware.UserID(c), conversationID, flags)
	var verr *chat.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		return
	}
	if err != nil {
		h.respondError(c, err, "failed to update conversation")
		return
	}

	emitAudit(c, h.audit, "conversation.updated", "conversation flags changed", conversationID)
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) respondError(c *gin.Context, err error, message string) {
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verr.Fields})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message, "request_id": requestIDFromContext(c)})
	}
}
