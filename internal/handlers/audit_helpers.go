package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-dashboard/internal/middleware"
	"chat-dashboard/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, action, text string, conversationID int64) {
	emitter.Emit(c.Request.Context(), telemetry.AuditEvent{
		Action:         action,
		Text:           text,
		RequestID:      requestIDFromContext(c),
		UserID:         middleware.UserID(c),
		ConversationID: conversationID,
	})
}
