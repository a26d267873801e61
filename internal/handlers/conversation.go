package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/middleware"
	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/repositories"
)

// ConversationHandler exposes conversation-level endpoints: starting direct
// chats, per-user preference flags, last-seen pointers and block lists.
type ConversationHandler struct {
	sessions *chat.SessionService
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(sessions *chat.SessionService) *ConversationHandler {
	return &ConversationHandler{sessions: sessions}
}

// StartDirect resolves or creates the 1:1 conversation with another user.
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	var req struct {
		TargetID int64 `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, created, err := h.sessions.StartDirectConversation(c.Request.Context(), middleware.UserID(c), req.TargetID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

var flagsByName = map[string]repositories.MemberFlag{
	"archive":  repositories.FlagArchived,
	"mute":     repositories.FlagMuted,
	"favorite": repositories.FlagFavorited,
	"pin":      repositories.FlagPinned,
}

// ToggleFlag flips one of the caller's conversation preference flags.
func (h *ConversationHandler) ToggleFlag(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	flag, ok := flagsByName[c.Param("flag")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown flag"})
		return
	}

	value, err := h.sessions.ToggleConversationFlag(c.Request.Context(), conversationID, middleware.UserID(c), flag)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{string(flag): value})
}

// GetLastSeen reads the caller's last-seen pointer.
func (h *ConversationHandler) GetLastSeen(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	lastSeen, err := h.sessions.LastSeen(c.Request.Context(), conversationID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_seen_message_id": lastSeen})
}

// PutLastSeen moves the caller's last-seen pointer.
func (h *ConversationHandler) PutLastSeen(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}

	var req struct {
		MessageID int64 `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.UpdateLastSeen(c.Request.Context(), conversationID, middleware.UserID(c), req.MessageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type blockRequest struct {
	UserID         *int64 `json:"user_id"`
	ConversationID *int64 `json:"conversation_id"`
}

func (r blockRequest) target() (models.BlockTarget, bool) {
	switch {
	case r.UserID != nil && r.ConversationID == nil:
		return models.BlockUser(*r.UserID), true
	case r.ConversationID != nil && r.UserID == nil:
		return models.BlockConversation(*r.ConversationID), true
	default:
		return models.BlockTarget{}, false
	}
}

// Block records a block on a user or a conversation.
func (h *ConversationHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, ok := req.target()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of user_id or conversation_id is required"})
		return
	}

	if err := h.sessions.Block(c.Request.Context(), middleware.UserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unblock removes a block.
func (h *ConversationHandler) Unblock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, ok := req.target()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of user_id or conversation_id is required"})
		return
	}

	if err := h.sessions.Unblock(c.Request.Context(), middleware.UserID(c), target); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
