package notify

import (
	"context"

	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/observability"
	"github.com/missastane/chat-engine/internal/ws"
)

// Dispatcher fans committed chat events out to the live websocket room and
// mirrors them on the AMQP event bus. It runs after the database commit;
// publish failures are counted and logged downstream, never propagated back
// into the write path.
type Dispatcher struct {
	hub *ws.Hub
}

// NewDispatcher wraps the hub.
func NewDispatcher(hub *ws.Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// Broadcast implements chat.Notifier. The acting user's own connections are
// excluded; they already hold the result from the HTTP response.
func (d *Dispatcher) Broadcast(ctx context.Context, actorID int64, event models.ChatEvent) {
	d.hub.Broadcast(event.ConversationID, actorID, event)

	_ = observability.PublishEvent(ctx, "chat_events."+event.Type, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: event.Type,
		Payload:   event,
	}, nil)
	observability.IncWSEvent(event.Type)
}
