package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/missastane/chat-engine/internal/mocks"
	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/repositories"
)

type groupFixture struct {
	groups        *mocks.GroupRepositoryMock
	memberships   *mocks.MembershipRepositoryMock
	conversations *mocks.ConversationRepositoryMock
	joinRequests  *mocks.JoinRequestRepositoryMock
	files         *mocks.FileRemoverMock
	notifier      *mocks.NotifierMock
	svc           *GroupService
}

func newGroupFixture() *groupFixture {
	f := &groupFixture{
		groups:        new(mocks.GroupRepositoryMock),
		memberships:   new(mocks.MembershipRepositoryMock),
		conversations: new(mocks.ConversationRepositoryMock),
		joinRequests:  new(mocks.JoinRequestRepositoryMock),
		files:         new(mocks.FileRemoverMock),
		notifier:      new(mocks.NotifierMock),
	}
	f.svc = NewGroupService(f.groups, f.memberships, f.conversations, f.joinRequests, f.files, f.notifier)
	return f
}

func (f *groupFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.groups.AssertExpectations(t)
	f.memberships.AssertExpectations(t)
	f.conversations.AssertExpectations(t)
	f.joinRequests.AssertExpectations(t)
	f.files.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestCreateGroupEmptyName(t *testing.T) {
	f := newGroupFixture()

	_, _, err := f.svc.CreateGroup(context.Background(), CreateGroupParams{OwnerID: 1})
	assert.ErrorIs(t, err, ErrEmptyGroupName)
	f.assertExpectations(t)
}

func TestCreateGroupWithAvatar(t *testing.T) {
	f := newGroupFixture()

	avatar := "uploads/a.png"
	f.groups.On("CreateGroup", mock.Anything, "team", int64(1), models.PrivacyApproval, []int64{2, 3}).
		Return(models.Group{ID: 7, ConversationID: 5, Name: "team", OwnerID: 1}, models.Conversation{ID: 5, IsGroup: true}, nil).Once()
	f.groups.On("SetAvatar", mock.Anything, int64(7), &avatar).Return((*string)(nil), nil).Once()

	group, conv, err := f.svc.CreateGroup(context.Background(), CreateGroupParams{
		Name: "team", OwnerID: 1, Privacy: models.PrivacyApproval, MemberIDs: []int64{2, 3}, AvatarPath: &avatar,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), group.ID)
	assert.Equal(t, int64(5), conv.ID)
	require.NotNil(t, group.AvatarPath)
	assert.Equal(t, avatar, *group.AvatarPath)
	f.assertExpectations(t)
}

func TestAddMembersSkipsDuplicates(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.memberships.On("GetActive", mock.Anything, int64(5), int64(1)).Return(models.Membership{UserID: 1, Role: models.RoleAdmin}, nil).Once()
	f.memberships.On("AddMember", mock.Anything, int64(5), int64(2), models.RoleMember).Return(models.Membership{}, repositories.ErrDuplicateMembership).Once()
	f.memberships.On("AddMember", mock.Anything, int64(5), int64(3), models.RoleMember).Return(models.Membership{ID: 30, UserID: 3}, nil).Once()

	added, err := f.svc.AddMembers(context.Background(), 7, 1, []int64{2, 3})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, int64(3), added[0].UserID)
	f.assertExpectations(t)
}

func TestAddMembersRequiresAdmin(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.memberships.On("GetActive", mock.Anything, int64(5), int64(2)).Return(models.Membership{UserID: 2, Role: models.RoleMember}, nil).Once()

	_, err := f.svc.AddMembers(context.Background(), 7, 2, []int64{4})
	assert.ErrorIs(t, err, ErrForbidden)
	f.assertExpectations(t)
}

func TestRemoveMemberSelfGoesThroughLeave(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.memberships.On("GetActive", mock.Anything, int64(5), int64(1)).Return(models.Membership{UserID: 1, Role: models.RoleAdmin}, nil).Once()

	err := f.svc.RemoveMember(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, ErrForbidden)
	f.assertExpectations(t)
}

func TestRemoveMemberNotActive(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.memberships.On("GetActive", mock.Anything, int64(5), int64(1)).Return(models.Membership{UserID: 1, Role: models.RoleAdmin}, nil).Once()
	f.memberships.On("RemoveMember", mock.Anything, int64(5), int64(9)).Return(repositories.ErrMembershipNotFound).Once()

	err := f.svc.RemoveMember(context.Background(), 7, 1, 9)
	assert.ErrorIs(t, err, ErrTargetNotActiveMember)
	f.assertExpectations(t)
}

func TestRequestJoinPrivateGroup(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5}, nil).Once()
	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true, PrivacyType: models.PrivacyPrivate}, nil).Once()

	_, err := f.svc.RequestJoin(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	f.assertExpectations(t)
}

func TestRequestJoinOpenGroupAttachesImmediately(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5}, nil).Once()
	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true, PrivacyType: models.PrivacyOpen}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(2)).Return(false, nil).Once()
	f.joinRequests.On("Create", mock.Anything, int64(5), int64(2), true).
		Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinApproved}, nil).Once()

	req, err := f.svc.RequestJoin(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, models.JoinApproved, req.Status)
	f.assertExpectations(t)
}

func TestRequestJoinApprovalGroupStaysPending(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5}, nil).Once()
	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true, PrivacyType: models.PrivacyApproval}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(2)).Return(false, nil).Once()
	f.joinRequests.On("Create", mock.Anything, int64(5), int64(2), false).
		Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinPending}, nil).Once()

	req, err := f.svc.RequestJoin(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, models.JoinPending, req.Status)
	f.assertExpectations(t)
}

func TestRequestJoinAlreadyMember(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5}, nil).Once()
	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true, PrivacyType: models.PrivacyOpen}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(2)).Return(true, nil).Once()

	_, err := f.svc.RequestJoin(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrAlreadyMember)
	f.assertExpectations(t)
}

func TestRespondToJoinRequestOwnerOnly(t *testing.T) {
	f := newGroupFixture()

	f.joinRequests.On("GetByID", mock.Anything, int64(11)).Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinPending}, nil).Once()
	f.groups.On("GetGroupByConversation", mock.Anything, int64(5)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()

	_, err := f.svc.RespondToJoinRequest(context.Background(), 11, 3, true)
	assert.ErrorIs(t, err, ErrNotOwner)
	f.assertExpectations(t)
}

func TestRespondToJoinRequestApproveAttaches(t *testing.T) {
	f := newGroupFixture()

	f.joinRequests.On("GetByID", mock.Anything, int64(11)).Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinPending}, nil).Once()
	f.groups.On("GetGroupByConversation", mock.Anything, int64(5)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.joinRequests.On("Respond", mock.Anything, int64(11), models.JoinApproved, true).
		Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinApproved}, nil).Once()

	req, err := f.svc.RespondToJoinRequest(context.Background(), 11, 1, true)
	require.NoError(t, err)
	assert.Equal(t, models.JoinApproved, req.Status)
	f.assertExpectations(t)
}

func TestRespondToJoinRequestReject(t *testing.T) {
	f := newGroupFixture()

	f.joinRequests.On("GetByID", mock.Anything, int64(11)).Return(models.JoinRequest{ID: 11, ConversationID: 5, UserID: 2, Status: models.JoinPending}, nil).Once()
	f.groups.On("GetGroupByConversation", mock.Anything, int64(5)).Return(models.Group{ID: 7, ConversationID: 5, OwnerID: 1}, nil).Once()
	f.joinRequests.On("Respond", mock.Anything, int64(11), models.JoinRejected, false).
		Return(models.JoinRequest{ID: 11, Status: models.JoinRejected}, nil).Once()

	req, err := f.svc.RespondToJoinRequest(context.Background(), 11, 1, false)
	require.NoError(t, err)
	assert.Equal(t, models.JoinRejected, req.Status)
	f.assertExpectations(t)
}

func TestLeaveNotAMember(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("Leave", mock.Anything, int64(7), int64(2)).Return(repositories.LeaveResult{}, repositories.ErrMembershipNotFound).Once()

	_, err := f.svc.Leave(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}

func TestLeavePromotesSuccessor(t *testing.T) {
	f := newGroupFixture()

	promoted := int64(3)
	f.groups.On("Leave", mock.Anything, int64(7), int64(1)).
		Return(repositories.LeaveResult{PromotedUserID: &promoted, NewOwnerID: &promoted}, nil).Once()

	res, err := f.svc.Leave(context.Background(), 7, 1)
	require.NoError(t, err)
	require.NotNil(t, res.PromotedUserID)
	assert.Equal(t, int64(3), *res.PromotedUserID)
	require.NotNil(t, res.NewOwnerID)
	assert.Equal(t, int64(3), *res.NewOwnerID)
	f.assertExpectations(t)
}

func TestLeaveLastMemberDeletesGroupAndAvatar(t *testing.T) {
	f := newGroupFixture()

	avatar := "uploads/a.png"
	f.groups.On("Leave", mock.Anything, int64(7), int64(1)).Return(repositories.LeaveResult{GroupDeleted: true, AvatarPath: &avatar}, nil).Once()
	f.files.On("Remove", mock.Anything, avatar).Return(nil).Once()

	res, err := f.svc.Leave(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, res.GroupDeleted)
	f.assertExpectations(t)
}

func TestTransferOwnershipNotOwner(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()

	err := f.svc.TransferOwnership(context.Background(), 7, 2, 3)
	assert.ErrorIs(t, err, ErrNotOwner)
	f.assertExpectations(t)
}

func TestTransferOwnershipTargetNotActive(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()
	f.groups.On("TransferOwnership", mock.Anything, int64(7), int64(1), int64(9)).Return(repositories.ErrMembershipNotFound).Once()

	err := f.svc.TransferOwnership(context.Background(), 7, 1, 9)
	assert.ErrorIs(t, err, ErrTargetNotActiveMember)
	f.assertExpectations(t)
}

func TestUpdateGroupRenameAndPrivacy(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()
	f.groups.On("Rename", mock.Anything, int64(7), "renamed").Return(nil).Once()
	f.groups.On("SetPrivacy", mock.Anything, int64(7), models.PrivacyOpen).Return(nil).Once()

	name := "renamed"
	privacy := models.PrivacyOpen
	err := f.svc.UpdateGroup(context.Background(), 7, 1, &name, &privacy)
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestUpdateGroupEmptyName(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()

	name := ""
	err := f.svc.UpdateGroup(context.Background(), 7, 1, &name, nil)
	assert.ErrorIs(t, err, ErrEmptyGroupName)
	f.assertExpectations(t)
}

func TestUpdateAvatarRemovesPrevious(t *testing.T) {
	f := newGroupFixture()

	previous := "uploads/old.png"
	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()
	f.groups.On("SetAvatar", mock.Anything, int64(7), mock.Anything).Return(&previous, nil).Once()
	f.files.On("Remove", mock.Anything, previous).Return(nil).Once()

	err := f.svc.UpdateAvatar(context.Background(), 7, 1, "uploads/new.png")
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, OwnerID: 1}, nil).Once()

	err := f.svc.DeleteGroup(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrNotOwner)
	f.assertExpectations(t)
}

func TestMembersRequiresMembership(t *testing.T) {
	f := newGroupFixture()

	f.groups.On("GetGroup", mock.Anything, int64(7)).Return(models.Group{ID: 7, ConversationID: 5}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(9)).Return(false, nil).Once()

	_, err := f.svc.Members(context.Background(), 7, 9)
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}
