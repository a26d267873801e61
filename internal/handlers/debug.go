package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/telemetry"
	"github.com/missastane/chat-engine/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints: a smoke check for the
// audit pipeline and a snapshot of websocket room occupancy.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "debug.audit_test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/ws/rooms", func(c *gin.Context) {
		if hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		sizes := hub.RoomSizes()
		rooms := make([]gin.H, 0, len(sizes))
		total := 0
		for conversationID, connections := range sizes {
			rooms = append(rooms, gin.H{"conversation_id": conversationID, "connections": connections})
			total += connections
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "total_connections": total})
	})
}
