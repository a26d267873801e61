package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, userIDs []int64) (models.Conversation, bool, error) {
	args := m.Called(ctx, userIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetByHash(ctx context.Context, hash string) (models.Conversation, error) {
	args := m.Called(ctx, hash)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) SetPrivacyType(ctx context.Context, conversationID int64, privacy models.PrivacyType) error {
	args := m.Called(ctx, conversationID, privacy)
	return args.Error(0)
}

type MembershipRepositoryMock struct {
	mock.Mock
}

func (m *MembershipRepositoryMock) IsActiveMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MembershipRepositoryMock) GetActive(ctx context.Context, conversationID, userID int64) (models.Membership, error) {
	args := m.Called(ctx, conversationID, userID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *MembershipRepositoryMock) AddMember(ctx context.Context, conversationID, userID int64, role models.MemberRole) (models.Membership, error) {
	args := m.Called(ctx, conversationID, userID, role)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *MembershipRepositoryMock) RemoveMember(ctx context.Context, conversationID, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) UpdateRole(ctx context.Context, conversationID, userID int64, role models.MemberRole) error {
	args := m.Called(ctx, conversationID, userID, role)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) ListActiveMembers(ctx context.Context, conversationID int64) ([]models.Membership, error) {
	args := m.Called(ctx, conversationID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

func (m *MembershipRepositoryMock) ActiveMemberIDsExcept(ctx context.Context, conversationID, excludeUserID int64) ([]int64, error) {
	args := m.Called(ctx, conversationID, excludeUserID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *MembershipRepositoryMock) CountActive(ctx context.Context, conversationID int64) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *MembershipRepositoryMock) ToggleFlag(ctx context.Context, conversationID, userID int64, flag repositories.MemberFlag) (bool, error) {
	args := m.Called(ctx, conversationID, userID, flag)
	return args.Bool(0), args.Error(1)
}

func (m *MembershipRepositoryMock) SetLastSeen(ctx context.Context, conversationID, userID, messageID int64) error {
	args := m.Called(ctx, conversationID, userID, messageID)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) LastSeen(ctx context.Context, conversationID, userID int64) (*int64, error) {
	args := m.Called(ctx, conversationID, userID)
	var id *int64
	if val := args.Get(0); val != nil {
		id = val.(*int64)
	}
	return id, args.Error(1)
}

func (m *MembershipRepositoryMock) PurgeLeft(ctx context.Context, conversationID, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, p repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ForwardMessage(ctx context.Context, source models.Message, senderID int64, targets []repositories.ForwardTarget) ([]models.Message, error) {
	args := m.Called(ctx, source, senderID, targets)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) SearchMessages(ctx context.Context, conversationID int64, query string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, query)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int64, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int64) ([]string, error) {
	args := m.Called(ctx, messageID)
	var paths []string
	if val := args.Get(0); val != nil {
		paths = val.([]string)
	}
	return paths, args.Error(1)
}

func (m *MessageRepositoryMock) MediaByMessage(ctx context.Context, messageID int64) ([]models.Media, error) {
	args := m.Called(ctx, messageID)
	var media []models.Media
	if val := args.Get(0); val != nil {
		media = val.([]models.Media)
	}
	return media, args.Error(1)
}

type StatusRepositoryMock struct {
	mock.Mock
}

func (m *StatusRepositoryMock) Get(ctx context.Context, messageID, userID int64) (models.DeliveryStatus, error) {
	args := m.Called(ctx, messageID, userID)
	var status models.DeliveryStatus
	if val := args.Get(0); val != nil {
		status = val.(models.DeliveryStatus)
	}
	return status, args.Error(1)
}

func (m *StatusRepositoryMock) MarkDelivered(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error) {
	args := m.Called(ctx, userID, messageIDs)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *StatusRepositoryMock) MarkRead(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error) {
	args := m.Called(ctx, userID, messageIDs)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *StatusRepositoryMock) DeleteForUser(ctx context.Context, messageID, userID int64) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *StatusRepositoryMock) FirstUnread(ctx context.Context, userID int64, messageIDs []int64) (*int64, error) {
	args := m.Called(ctx, userID, messageIDs)
	var id *int64
	if val := args.Get(0); val != nil {
		id = val.(*int64)
	}
	return id, args.Error(1)
}

func (m *StatusRepositoryMock) UndeliveredCount(ctx context.Context, messageID int64) (int, error) {
	args := m.Called(ctx, messageID)
	return args.Int(0), args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, name string, ownerID int64, privacy models.PrivacyType, memberIDs []int64) (models.Group, models.Conversation, error) {
	args := m.Called(ctx, name, ownerID, privacy, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	var conv models.Conversation
	if val := args.Get(1); val != nil {
		conv = val.(models.Conversation)
	}
	return group, conv, args.Error(2)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupByConversation(ctx context.Context, conversationID int64) (models.Group, error) {
	args := m.Called(ctx, conversationID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) Leave(ctx context.Context, groupID, userID int64) (repositories.LeaveResult, error) {
	args := m.Called(ctx, groupID, userID)
	var res repositories.LeaveResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.LeaveResult)
	}
	return res, args.Error(1)
}

func (m *GroupRepositoryMock) TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) error {
	args := m.Called(ctx, groupID, fromUserID, toUserID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) SetAvatar(ctx context.Context, groupID int64, avatarPath *string) (*string, error) {
	args := m.Called(ctx, groupID, avatarPath)
	var previous *string
	if val := args.Get(0); val != nil {
		previous = val.(*string)
	}
	return previous, args.Error(1)
}

func (m *GroupRepositoryMock) Rename(ctx context.Context, groupID int64, name string) error {
	args := m.Called(ctx, groupID, name)
	return args.Error(0)
}

func (m *GroupRepositoryMock) SetPrivacy(ctx context.Context, groupID int64, privacy models.PrivacyType) error {
	args := m.Called(ctx, groupID, privacy)
	return args.Error(0)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID int64) (*string, error) {
	args := m.Called(ctx, groupID)
	var avatarPath *string
	if val := args.Get(0); val != nil {
		avatarPath = val.(*string)
	}
	return avatarPath, args.Error(1)
}

type JoinRequestRepositoryMock struct {
	mock.Mock
}

func (m *JoinRequestRepositoryMock) Create(ctx context.Context, conversationID, userID int64, attachMembership bool) (models.JoinRequest, error) {
	args := m.Called(ctx, conversationID, userID, attachMembership)
	var req models.JoinRequest
	if val := args.Get(0); val != nil {
		req = val.(models.JoinRequest)
	}
	return req, args.Error(1)
}

func (m *JoinRequestRepositoryMock) GetByID(ctx context.Context, requestID int64) (models.JoinRequest, error) {
	args := m.Called(ctx, requestID)
	var req models.JoinRequest
	if val := args.Get(0); val != nil {
		req = val.(models.JoinRequest)
	}
	return req, args.Error(1)
}

func (m *JoinRequestRepositoryMock) PendingByConversation(ctx context.Context, conversationID int64) ([]models.JoinRequest, error) {
	args := m.Called(ctx, conversationID)
	var reqs []models.JoinRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.JoinRequest)
	}
	return reqs, args.Error(1)
}

func (m *JoinRequestRepositoryMock) Respond(ctx context.Context, requestID int64, status models.JoinRequestStatus, attachMembership bool) (models.JoinRequest, error) {
	args := m.Called(ctx, requestID, status, attachMembership)
	var req models.JoinRequest
	if val := args.Get(0); val != nil {
		req = val.(models.JoinRequest)
	}
	return req, args.Error(1)
}

type ExtrasRepositoryMock struct {
	mock.Mock
}

func (m *ExtrasRepositoryMock) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *ExtrasRepositoryMock) ListReactions(ctx context.Context, messageID int64) ([]models.ReactionGroup, error) {
	args := m.Called(ctx, messageID)
	var groups []models.ReactionGroup
	if val := args.Get(0); val != nil {
		groups = val.([]models.ReactionGroup)
	}
	return groups, args.Error(1)
}

func (m *ExtrasRepositoryMock) TogglePin(ctx context.Context, conversationID, messageID, userID int64, isPublic bool) (bool, error) {
	args := m.Called(ctx, conversationID, messageID, userID, isPublic)
	return args.Bool(0), args.Error(1)
}

func (m *ExtrasRepositoryMock) ListPins(ctx context.Context, conversationID, userID int64) ([]models.PinnedMessage, error) {
	args := m.Called(ctx, conversationID, userID)
	var pins []models.PinnedMessage
	if val := args.Get(0); val != nil {
		pins = val.([]models.PinnedMessage)
	}
	return pins, args.Error(1)
}

func (m *ExtrasRepositoryMock) ToggleFavorite(ctx context.Context, messageID, userID int64) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ExtrasRepositoryMock) ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteMessage, error) {
	args := m.Called(ctx, userID)
	var favs []models.FavoriteMessage
	if val := args.Get(0); val != nil {
		favs = val.([]models.FavoriteMessage)
	}
	return favs, args.Error(1)
}

func (m *ExtrasRepositoryMock) Block(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	args := m.Called(ctx, blockerID, target)
	return args.Error(0)
}

func (m *ExtrasRepositoryMock) Unblock(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	args := m.Called(ctx, blockerID, target)
	return args.Error(0)
}

func (m *ExtrasRepositoryMock) IsBlocked(ctx context.Context, blockerID int64, target models.BlockTarget) (bool, error) {
	args := m.Called(ctx, blockerID, target)
	return args.Bool(0), args.Error(1)
}

func (m *ExtrasRepositoryMock) AnyBlockBetween(ctx context.Context, userA, userB int64) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Broadcast(ctx context.Context, actorID int64, event models.ChatEvent) {
	m.Called(ctx, actorID, event)
}

type RoleDirectoryMock struct {
	mock.Mock
}

func (m *RoleDirectoryMock) IsElevated(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type FileRemoverMock struct {
	mock.Mock
}

func (m *FileRemoverMock) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}
