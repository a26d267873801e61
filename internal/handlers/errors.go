package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/repositories"
)

// respondError translates service failures into HTTP responses. The typed
// sentinels are expected caller errors; anything unrecognized rolls up as a
// generic internal error with the cause logged.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotAMember),
		errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrNotSender),
		errors.Is(err, chat.ErrNotOwner),
		errors.Is(err, chat.ErrGroupSendForbidden),
		errors.Is(err, chat.ErrPrivateReplyForbidden),
		errors.Is(err, chat.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrSelfReplyForbidden),
		errors.Is(err, chat.ErrSelfConversation),
		errors.Is(err, chat.ErrEmptyGroupName),
		errors.Is(err, chat.ErrTargetNotActiveMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrAlreadyMember),
		errors.Is(err, chat.ErrAlreadyFullyDelivered),
		errors.Is(err, repositories.ErrDuplicateMembership),
		errors.Is(err, repositories.ErrRequestAlreadyPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrStatusNotFound),
		errors.Is(err, repositories.ErrMembershipNotFound),
		errors.Is(err, repositories.ErrGroupNotFound),
		errors.Is(err, repositories.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrStorageFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
