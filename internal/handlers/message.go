package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/middleware"
	"github.com/missastane/chat-engine/internal/observability"
	"github.com/missastane/chat-engine/internal/repositories"
	"github.com/missastane/chat-engine/internal/storage"
	"github.com/missastane/chat-engine/internal/telemetry"
)

// MessageHandler exposes the message traffic endpoints.
type MessageHandler struct {
	sessions *chat.SessionService
	store    storage.Store
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(sessions *chat.SessionService, store storage.Store, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{sessions: sessions, store: store, audit: audit}
}

// PostMessage stores a message, optionally threaded and with attachments.
// Accepts JSON for text-only messages and multipart for uploads.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	params := chat.SendParams{ConversationID: conversationID, SenderID: userID}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if values := form.Value["content"]; len(values) > 0 && values[0] != "" {
			params.Content = &values[0]
		}
		if values := form.Value["parent_id"]; len(values) > 0 {
			parentID, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parent id"})
				return
			}
			params.ParentID = &parentID
		}
		media, err := saveUploads(c, h.store, form.File["files"])
		if err != nil {
			respondError(c, err)
			return
		}
		params.Media = media
	} else {
		var req struct {
			Content  string `json:"content"`
			ParentID *int64 `json:"parent_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Content != "" {
			params.Content = &req.Content
		}
		params.ParentID = req.ParentID
	}

	msg, err := h.sessions.Send(c.Request.Context(), params)
	if err != nil {
		cleanupUploads(c, h.store, params.Media)
		respondError(c, err)
		return
	}

	kind := "send"
	if params.ParentID != nil {
		kind = "reply"
	}
	observability.IncMessage(kind)
	h.emitAudit(c, telemetry.LevelInfo, "message.sent")
	c.JSON(http.StatusCreated, msg)
}

// PostPrivateReply replies privately to a group message, landing in the 1:1
// conversation with the original author.
func (h *MessageHandler) PostPrivateReply(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var content *string
	var media []repositories.MediaInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if values := form.Value["content"]; len(values) > 0 && values[0] != "" {
			content = &values[0]
		}
		media, err = saveUploads(c, h.store, form.File["files"])
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		content = &req.Content
	}

	msg, err := h.sessions.SendPrivateReply(c.Request.Context(), messageID, userID, content, media)
	if err != nil {
		cleanupUploads(c, h.store, media)
		respondError(c, err)
		return
	}

	observability.IncMessage("private_reply")
	h.emitAudit(c, telemetry.LevelInfo, "message.private_reply_sent")
	c.JSON(http.StatusCreated, msg)
}

// PostForward forwards a message into one or more conversations.
func (h *MessageHandler) PostForward(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var req struct {
		ConversationIDs []int64 `json:"conversation_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgs, err := h.sessions.Forward(c.Request.Context(), messageID, userID, req.ConversationIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	observability.IncMessage("forward")
	h.emitAudit(c, telemetry.LevelInfo, "message.forwarded")
	c.JSON(http.StatusCreated, gin.H{"messages": msgs})
}

// GetMessages returns a page of messages, marking them delivered for the
// caller and reporting the first unread one.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	limit, offset := pageParams(c)

	page, err := h.sessions.FetchMessages(c.Request.Context(), conversationID, userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SearchMessages finds text matches in a conversation.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing search query"})
		return
	}

	msgs, err := h.sessions.SearchMessages(c.Request.Context(), conversationID, middleware.UserID(c), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead acknowledges delivered messages as read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}

	var req struct {
		MessageIDs []int64 `json:"message_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changed, err := h.sessions.MarkRead(c.Request.Context(), conversationID, middleware.UserID(c), req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	observability.AddStatusTransitions("read", len(changed))
	c.JSON(http.StatusOK, gin.H{"read_message_ids": changed})
}

// UpdateMessage edits a message body.
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.sessions.UpdateMessage(c.Request.Context(), messageID, middleware.UserID(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "message.updated")
	c.JSON(http.StatusOK, msg)
}

// DeleteForAll removes a message for every participant.
func (h *MessageHandler) DeleteForAll(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	if err := h.sessions.DeleteMessage(c.Request.Context(), messageID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "message.deleted_for_all")
	c.Status(http.StatusNoContent)
}

// DeleteForMe hides a message from the caller only.
func (h *MessageHandler) DeleteForMe(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	if err := h.sessions.DeleteForMe(c.Request.Context(), messageID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleReaction flips the caller's emoji reaction on a message.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.sessions.ToggleReaction(c.Request.Context(), messageID, middleware.UserID(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reacted": added})
}

// ListReactions returns a message's reactions grouped by emoji.
func (h *MessageHandler) ListReactions(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	groups, err := h.sessions.ListReactions(c.Request.Context(), messageID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": groups})
}

// TogglePin pins or unpins a message in a conversation.
func (h *MessageHandler) TogglePin(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}

	var req struct {
		IsPublic bool `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pinned, err := h.sessions.TogglePin(c.Request.Context(), conversationID, messageID, middleware.UserID(c), req.IsPublic)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": pinned})
}

// ListPins returns the public pin and the caller's private pins.
func (h *MessageHandler) ListPins(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	pins, err := h.sessions.ListPins(c.Request.Context(), conversationID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins})
}

// ToggleFavorite stars or unstars a message.
func (h *MessageHandler) ToggleFavorite(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	favorited, err := h.sessions.ToggleFavorite(c.Request.Context(), messageID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": favorited})
}

// ListFavorites returns the caller's starred messages.
func (h *MessageHandler) ListFavorites(c *gin.Context) {
	favs, err := h.sessions.ListFavorites(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favs})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, action string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, action, requestIDFromContext(c), userIDFromContext(c))
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + strings.ReplaceAll(name, "_", " ")})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
