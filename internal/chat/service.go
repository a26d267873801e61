package chat

import (
	"context"

	"github.com/missastane/chat-engine/internal/models"
)

// Realtime event types carried by models.ChatEvent.
const (
	EventMessage        = "message"
	EventMessageUpdated = "message_updated"
	EventDeleteForAll   = "delete_for_all"
	EventStatus         = "status"
	EventReaction       = "reaction"
	EventPin            = "pin"
	EventTyping         = "typing"
	EventPresence       = "presence"
)

// Notifier fans a committed event out to the conversation's live
// connections, excluding the acting user's own, and mirrors it on the event
// bus. Dispatch is fire and forget: it runs after commit and its failure is
// logged, never propagated.
type Notifier interface {
	Broadcast(ctx context.Context, actorID int64, event models.ChatEvent)
}

// RoleDirectory answers whether a user holds an elevated platform role.
// Consulted only for the group-posting restriction.
type RoleDirectory interface {
	IsElevated(ctx context.Context, userID int64) (bool, error)
}

// FileRemover deletes a stored file by its opaque path. Used for
// post-commit cleanup of orphaned attachments and replaced avatars.
type FileRemover interface {
	Remove(ctx context.Context, path string) error
}
