package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/middleware"
	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/storage"
	"github.com/missastane/chat-engine/internal/telemetry"
)

// GroupHandler exposes the group lifecycle endpoints.
type GroupHandler struct {
	groups *chat.GroupService
	store  storage.Store
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(groups *chat.GroupService, store storage.Store, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, store: store, audit: audit}
}

// CreateGroup creates a group with its initial members. Multipart requests
// may carry an avatar file.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := middleware.UserID(c)
	params := chat.CreateGroupParams{OwnerID: userID}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if values := form.Value["name"]; len(values) > 0 {
			params.Name = values[0]
		}
		if values := form.Value["privacy_type"]; len(values) > 0 {
			privacy, err := strconv.Atoi(values[0])
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid privacy type"})
				return
			}
			params.Privacy = models.PrivacyType(privacy)
		}
		for _, value := range form.Value["member_ids"] {
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
				return
			}
			params.MemberIDs = append(params.MemberIDs, id)
		}
		if files := form.File["avatar"]; len(files) > 0 {
			media, err := saveUploads(c, h.store, files[:1])
			if err != nil {
				respondError(c, err)
				return
			}
			params.AvatarPath = &media[0].FilePath
		}
	} else {
		var req struct {
			Name      string             `json:"name" binding:"required"`
			Privacy   models.PrivacyType `json:"privacy_type"`
			MemberIDs []int64            `json:"member_ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			h.emitAudit(c, telemetry.LevelError, "group.request_invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		params.Name = req.Name
		params.Privacy = req.Privacy
		params.MemberIDs = req.MemberIDs
	}

	group, conv, err := h.groups.CreateGroup(c.Request.Context(), params)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "group.create_failed")
		respondError(c, err)
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "group.created")
	c.JSON(http.StatusCreated, gin.H{"group": group, "conversation": conv})
}

// GetGroup returns group metadata for members.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	group, err := h.groups.Group(c.Request.Context(), groupID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// ListMembers returns the group's active members.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	members, err := h.groups.Members(c.Request.Context(), groupID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddMembers adds users to the group. Admin only.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		UserIDs []int64 `json:"user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.groups.AddMembers(c.Request.Context(), groupID, middleware.UserID(c), req.UserIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.members_added")
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// RemoveMember kicks a member. Admin only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	if err := h.groups.RemoveMember(c.Request.Context(), groupID, middleware.UserID(c), userID); err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.member_removed")
	c.Status(http.StatusNoContent)
}

// UpdateMemberRole changes a member's role. Owner only.
func (h *GroupHandler) UpdateMemberRole(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role models.MemberRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	if err := h.groups.UpdateMemberRole(c.Request.Context(), groupID, middleware.UserID(c), userID, req.Role); err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.member_role_updated")
	c.Status(http.StatusNoContent)
}

// RequestJoin submits a join request; open groups join immediately.
func (h *GroupHandler) RequestJoin(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	req, err := h.groups.RequestJoin(c.Request.Context(), groupID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListPendingRequests lists pending join requests. Owner only.
func (h *GroupHandler) ListPendingRequests(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	reqs, err := h.groups.PendingRequests(c.Request.Context(), groupID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// RespondToJoinRequest approves or rejects a pending request. Owner only.
func (h *GroupHandler) RespondToJoinRequest(c *gin.Context) {
	requestID, ok := paramID(c, "request_id")
	if !ok {
		return
	}

	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolved, err := h.groups.RespondToJoinRequest(c.Request.Context(), requestID, middleware.UserID(c), *req.Approve)
	if err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.join_request_resolved")
	c.JSON(http.StatusOK, resolved)
}

// Leave exits the group, running the promotion cascade when needed.
func (h *GroupHandler) Leave(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	res, err := h.groups.Leave(c.Request.Context(), groupID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.left")
	c.JSON(http.StatusOK, gin.H{
		"group_deleted":    res.GroupDeleted,
		"promoted_user_id": res.PromotedUserID,
		"new_owner_id":     res.NewOwnerID,
	})
}

// TransferOwnership hands the group to another member. Owner only.
func (h *GroupHandler) TransferOwnership(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.TransferOwnership(c.Request.Context(), groupID, middleware.UserID(c), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.ownership_transferred")
	c.Status(http.StatusNoContent)
}

// UpdateGroup renames the group or changes its join policy. Owner only.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		Name    *string             `json:"name"`
		Privacy *models.PrivacyType `json:"privacy_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.UpdateGroup(c.Request.Context(), groupID, middleware.UserID(c), req.Name, req.Privacy); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateAvatar replaces the group avatar. Owner only.
func (h *GroupHandler) UpdateAvatar(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing avatar file"})
		return
	}
	media, err := saveUploads(c, h.store, []*multipart.FileHeader{file})
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.groups.UpdateAvatar(c.Request.Context(), groupID, middleware.UserID(c), media[0].FilePath); err != nil {
		cleanupUploads(c, h.store, media)
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.avatar_updated")
	c.JSON(http.StatusOK, gin.H{"avatar_path": media[0].FilePath})
}

// RemoveAvatar clears the group avatar. Owner only.
func (h *GroupHandler) RemoveAvatar(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	if err := h.groups.RemoveAvatar(c.Request.Context(), groupID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteGroup tears the group down. Owner only.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	if err := h.groups.DeleteGroup(c.Request.Context(), groupID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	h.emitAudit(c, telemetry.LevelInfo, "group.deleted")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, action string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, action, requestIDFromContext(c), userIDFromContext(c))
}
