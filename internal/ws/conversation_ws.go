package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/middleware"
	"chat-dashboard/internal/models"
	"chat-dashboard/internal/observability"
)

// ConversationLookup resolves a conversation for its owner.
type ConversationLookup interface {
	GetConversation(ctx context.Context, userID, conversationID int64) (models.ConversationWithContact, error)
}

// ConversationWebSocketHandler upgrades watchers of one conversation. It runs
// behind middleware.AuthMiddleware.
type ConversationWebSocketHandler struct {
	hub    *Hub
	lookup ConversationLookup
}

func NewConversationWebSocketHandler(hub *Hub, lookup ConversationLookup) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, lookup: lookup}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle checks ownership, upgrades the connection and registers the client.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	ctx, span := otel.Tracer("chat-dashboard/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := middleware.UserID(c)
	if _, err := h.lookup.GetConversation(ctx, userID, conversationID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conversationID, conn, info)
	observability.IncWSActive(kindConversation)
	h.hub.publishLifecycle(ctx, "ws_connect", conversationID, info, "")

	// the read loop only detects disconnects; clients never send frames
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(conversationID, conn)
			observability.DecWSActive(kindConversation)
			h.hub.publishLifecycle(context.Background(), "ws_disconnect", conversationID, info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.hub.publishLifecycle(context.Background(), "ws_error", conversationID, info, closeReason)
				}
				return
			}
		}
	}()
}
