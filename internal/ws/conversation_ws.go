package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/observability"
	"github.com/missastane/chat-engine/internal/presence"
	"github.com/missastane/chat-engine/internal/repositories"
)

// ConversationWebSocketHandler upgrades clients into conversation rooms.
type ConversationWebSocketHandler struct {
	hub         *Hub
	memberships repositories.MembershipRepository
	tracker     *presence.Tracker
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(hub *Hub, memberships repositories.MembershipRepository, tracker *presence.Tracker) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, memberships: memberships, tracker: tracker}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what connected clients may send upstream. Only typing
// signals are accepted; messages go through the HTTP API.
type clientFrame struct {
	Type string `json:"type"`
}

// Handle upgrades the connection, registers the client in the conversation
// room and marks presence until the connection closes.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	member, err := h.memberships.IsActiveMember(ctx, conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conversationID, conn, info)

	_ = h.tracker.MarkOnline(ctx, userID)
	h.hub.Broadcast(conversationID, userID, models.ChatEvent{
		Type:           chat.EventPresence,
		ConversationID: conversationID,
		UserID:         userID,
	})

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.conversations", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(conversationID, "ws_connect", info, 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	// The handshake context dies with the HTTP handler, but the connection
	// outlives it. The reader goroutine gets a detached context so presence
	// and event publishing keep working until the socket closes.
	connCtx := context.WithoutCancel(ctx)

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(conversationID, conn)
			_ = h.tracker.MarkOffline(connCtx, userID)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(connCtx, "ws_events.conversations", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   wsEventPayload(conversationID, "ws_disconnect", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					_ = observability.PublishEvent(connCtx, "ws_events.conversations", observability.EventEnvelope{
						EventType: "ws_events",
						EventName: "ws_error",
						Payload:   wsEventPayload(conversationID, "ws_error", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
					}, observability.BuildHeaders(requestID, traceID))
				}
				return
			}

			var frame clientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == chat.EventTyping {
				_ = h.tracker.MarkTyping(connCtx, conversationID, userID)
				h.hub.Broadcast(conversationID, userID, models.ChatEvent{
					Type:           chat.EventTyping,
					ConversationID: conversationID,
					UserID:         userID,
				})
			}
		}
	}()
}

func wsEventPayload(conversationID int64, event string, info ConnInfo, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"conversation_id": conversationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     durationMS,
			"reason":          reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
