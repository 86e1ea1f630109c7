package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-dashboard/internal/telemetry"
)

// RoomCounter reports how many websocket clients watch a conversation.
type RoomCounter interface {
	RoomSize(conversationID int64) int
}

// RegisterDebugRoutes wires the operator endpoints. Nothing is registered
// unless enabled.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, rooms RoomCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, "debug.audit_test", "audit pipeline check", 0)
		c.JSON(http.StatusOK, gin.H{"status": "emitted", "request_id": requestIDFromContext(c)})
	})

	router.GET("/debug/conversations/:conversation_id/watchers", func(c *gin.Context) {
		conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
		if err != nil || rooms == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "watchers": rooms.RoomSize(conversationID)})
	})
}
