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

type sessionFixture struct {
	conversations *mocks.ConversationRepositoryMock
	memberships   *mocks.MembershipRepositoryMock
	messages      *mocks.MessageRepositoryMock
	statuses      *mocks.StatusRepositoryMock
	groups        *mocks.GroupRepositoryMock
	extras        *mocks.ExtrasRepositoryMock
	roles         *mocks.RoleDirectoryMock
	files         *mocks.FileRemoverMock
	notifier      *mocks.NotifierMock
	svc           *SessionService
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		conversations: new(mocks.ConversationRepositoryMock),
		memberships:   new(mocks.MembershipRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		statuses:      new(mocks.StatusRepositoryMock),
		groups:        new(mocks.GroupRepositoryMock),
		extras:        new(mocks.ExtrasRepositoryMock),
		roles:         new(mocks.RoleDirectoryMock),
		files:         new(mocks.FileRemoverMock),
		notifier:      new(mocks.NotifierMock),
	}
	f.svc = NewSessionService(
		f.conversations, f.memberships, f.messages, f.statuses,
		f.groups, f.extras, f.roles, f.files, f.notifier,
	)
	return f
}

func (f *sessionFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.conversations.AssertExpectations(t)
	f.memberships.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.statuses.AssertExpectations(t)
	f.groups.AssertExpectations(t)
	f.extras.AssertExpectations(t)
	f.roles.AssertExpectations(t)
	f.files.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func strPtr(s string) *string { return &s }

func TestSendFansOutToActiveMembers(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(false, nil).Once()
	f.memberships.On("ActiveMemberIDsExcept", mock.Anything, int64(5), int64(1)).Return([]int64{2, 3, 4}, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, repositories.CreateMessageParams{
		ConversationID: 5,
		SenderID:       1,
		Content:        strPtr("hello"),
		Recipients:     []int64{2, 3, 4},
	}).Return(models.Message{ID: 9, ConversationID: 5, SenderID: 1, Content: strPtr("hello")}, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	msg, err := f.svc.Send(ctx, SendParams{ConversationID: 5, SenderID: 1, Content: strPtr("hello")})
	require.NoError(t, err)
	assert.Equal(t, int64(9), msg.ID)
	f.assertExpectations(t)
}

func TestSendNotAMember(t *testing.T) {
	f := newSessionFixture()

	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	_, err := f.svc.Send(context.Background(), SendParams{ConversationID: 5, SenderID: 1, Content: strPtr("hi")})
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}

func TestSendEmptyMessage(t *testing.T) {
	f := newSessionFixture()

	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(false, nil).Once()

	_, err := f.svc.Send(context.Background(), SendParams{ConversationID: 5, SenderID: 1, Content: strPtr("")})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	f.assertExpectations(t)
}

func TestSendElevatedUserForbiddenInGroup(t *testing.T) {
	f := newSessionFixture()

	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{ID: 5, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(true, nil).Once()

	_, err := f.svc.Send(context.Background(), SendParams{ConversationID: 5, SenderID: 1, Content: strPtr("hi")})
	assert.ErrorIs(t, err, ErrGroupSendForbidden)
	f.assertExpectations(t)
}

func TestSendBlockedInDirectConversation(t *testing.T) {
	f := newSessionFixture()

	f.conversations.On("GetConversation", mock.Anything, int64(8)).Return(models.Conversation{ID: 8}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(8), int64(1)).Return(true, nil).Once()
	f.extras.On("IsBlocked", mock.Anything, int64(1), models.BlockConversation(8)).Return(false, nil).Once()
	f.memberships.On("ActiveMemberIDsExcept", mock.Anything, int64(8), int64(1)).Return([]int64{2}, nil).Once()
	f.extras.On("AnyBlockBetween", mock.Anything, int64(1), int64(2)).Return(true, nil).Once()

	_, err := f.svc.Send(context.Background(), SendParams{ConversationID: 8, SenderID: 1, Content: strPtr("hi")})
	assert.ErrorIs(t, err, ErrBlocked)
	f.assertExpectations(t)
}

func TestPrivateReplyToOwnMessage(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 1}, nil).Once()

	_, err := f.svc.SendPrivateReply(context.Background(), 3, 1, strPtr("psst"), nil)
	assert.ErrorIs(t, err, ErrSelfReplyForbidden)
	f.assertExpectations(t)
}

func TestPrivateReplyOutsiderForbidden(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 2}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	_, err := f.svc.SendPrivateReply(context.Background(), 3, 1, strPtr("psst"), nil)
	assert.ErrorIs(t, err, ErrPrivateReplyForbidden)
	f.assertExpectations(t)
}

func TestPrivateReplyElevatedForbidden(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 2}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(true, nil).Once()

	_, err := f.svc.SendPrivateReply(context.Background(), 3, 1, strPtr("psst"), nil)
	assert.ErrorIs(t, err, ErrPrivateReplyForbidden)
	f.assertExpectations(t)
}

func TestPrivateReplyTargetsAuthorOnly(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 2}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(false, nil).Once()
	f.extras.On("AnyBlockBetween", mock.Anything, int64(1), int64(2)).Return(false, nil).Once()
	f.conversations.On("CreateOrGetDirect", mock.Anything, []int64{1, 2}).Return(models.Conversation{ID: 40}, false, nil).Once()
	srcID := int64(3)
	f.messages.On("CreateMessage", mock.Anything, repositories.CreateMessageParams{
		ConversationID:       40,
		SenderID:             1,
		Content:              strPtr("psst"),
		PrivateReplySourceID: &srcID,
		Recipients:           []int64{2},
		EnsureMemberIDs:      []int64{1, 2},
	}).Return(models.Message{ID: 50, ConversationID: 40, SenderID: 1}, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	msg, err := f.svc.SendPrivateReply(context.Background(), 3, 1, strPtr("psst"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), msg.ConversationID)
	f.assertExpectations(t)
}

func TestForwardRequiresSourceMembership(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 2}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	_, err := f.svc.Forward(context.Background(), 3, 1, []int64{8})
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}

func TestForwardOneBadTargetAbortsAll(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 2}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()

	f.conversations.On("GetConversation", mock.Anything, int64(8)).Return(models.Conversation{ID: 8, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(8), int64(1)).Return(true, nil).Once()
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(false, nil).Once()
	f.memberships.On("ActiveMemberIDsExcept", mock.Anything, int64(8), int64(1)).Return([]int64{2}, nil).Once()

	f.conversations.On("GetConversation", mock.Anything, int64(9)).Return(models.Conversation{ID: 9, IsGroup: true}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(9), int64(1)).Return(false, nil).Once()

	_, err := f.svc.Forward(context.Background(), 3, 1, []int64{8, 9})
	assert.ErrorIs(t, err, ErrNotAMember)
	f.messages.AssertNotCalled(t, "ForwardMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestForwardBroadcastsPerTarget(t *testing.T) {
	f := newSessionFixture()

	source := models.Message{ID: 3, ConversationID: 5, SenderID: 2}
	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(source, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()

	for _, convID := range []int64{8, 9} {
		f.conversations.On("GetConversation", mock.Anything, convID).Return(models.Conversation{ID: convID, IsGroup: true}, nil).Once()
		f.memberships.On("IsActiveMember", mock.Anything, convID, int64(1)).Return(true, nil).Once()
		f.memberships.On("ActiveMemberIDsExcept", mock.Anything, convID, int64(1)).Return([]int64{2}, nil).Once()
	}
	f.roles.On("IsElevated", mock.Anything, int64(1)).Return(false, nil).Twice()

	f.messages.On("ForwardMessage", mock.Anything, source, int64(1), []repositories.ForwardTarget{
		{ConversationID: 8, Recipients: []int64{2}},
		{ConversationID: 9, Recipients: []int64{2}},
	}).Return([]models.Message{
		{ID: 20, ConversationID: 8, SenderID: 1},
		{ID: 21, ConversationID: 9, SenderID: 1},
	}, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Twice()

	msgs, err := f.svc.Forward(context.Background(), 3, 1, []int64{8, 9})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	f.assertExpectations(t)
}

func TestFetchMessagesMarksDelivered(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.messages.On("ListMessages", mock.Anything, int64(5), 50, 0).Return([]models.Message{{ID: 11}, {ID: 10}}, nil).Once()
	f.statuses.On("MarkDelivered", mock.Anything, int64(1), []int64{11, 10}).Return([]int64{11}, nil).Once()
	first := int64(11)
	f.statuses.On("FirstUnread", mock.Anything, int64(1), []int64{11, 10}).Return(&first, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	page, err := f.svc.FetchMessages(context.Background(), 5, 1, 50, 0)
	require.NoError(t, err)
	require.NotNil(t, page.FirstUnreadID)
	assert.Equal(t, int64(11), *page.FirstUnreadID)
	f.assertExpectations(t)
}

func TestFetchMessagesNoTransitionNoEvent(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.messages.On("ListMessages", mock.Anything, int64(5), 50, 0).Return([]models.Message{{ID: 11}}, nil).Once()
	f.statuses.On("MarkDelivered", mock.Anything, int64(1), []int64{11}).Return([]int64(nil), nil).Once()
	f.statuses.On("FirstUnread", mock.Anything, int64(1), []int64{11}).Return((*int64)(nil), nil).Once()

	page, err := f.svc.FetchMessages(context.Background(), 5, 1, 50, 0)
	require.NoError(t, err)
	assert.Nil(t, page.FirstUnreadID)
	f.notifier.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestFetchMessagesFirstFetchCarriesNoMarker(t *testing.T) {
	f := newSessionFixture()

	// Every row in the page is still at sent, so the marker query sees no
	// delivered rows even though the fetch itself delivers the page.
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.messages.On("ListMessages", mock.Anything, int64(5), 50, 0).Return([]models.Message{{ID: 12}, {ID: 11}}, nil).Once()

	markerQueried := false
	f.statuses.On("FirstUnread", mock.Anything, int64(1), []int64{12, 11}).
		Run(func(mock.Arguments) { markerQueried = true }).
		Return((*int64)(nil), nil).Once()
	f.statuses.On("MarkDelivered", mock.Anything, int64(1), []int64{12, 11}).
		Run(func(mock.Arguments) {
			assert.True(t, markerQueried, "marker must be computed before delivery transitions")
		}).
		Return([]int64{12, 11}, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	page, err := f.svc.FetchMessages(context.Background(), 5, 1, 50, 0)
	require.NoError(t, err)
	assert.Nil(t, page.FirstUnreadID)
	f.assertExpectations(t)
}

func TestMarkReadReturnsTransitionedIDs(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.statuses.On("MarkRead", mock.Anything, int64(1), []int64{10, 11, 12}).Return([]int64{10, 11}, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	changed, err := f.svc.MarkRead(context.Background(), 5, 1, []int64{10, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, changed)
	f.assertExpectations(t)
}

func TestUpdateMessageNotSender(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, SenderID: 2}, nil).Once()

	_, err := f.svc.UpdateMessage(context.Background(), 3, 1, "edited")
	assert.ErrorIs(t, err, ErrNotSender)
	f.assertExpectations(t)
}

func TestUpdateMessageLockedAfterFullDelivery(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, SenderID: 1}, nil).Once()
	f.statuses.On("UndeliveredCount", mock.Anything, int64(3)).Return(0, nil).Once()

	_, err := f.svc.UpdateMessage(context.Background(), 3, 1, "edited")
	assert.ErrorIs(t, err, ErrAlreadyFullyDelivered)
	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestUpdateMessageSuccess(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 1, Content: strPtr("old")}, nil).Once()
	f.statuses.On("UndeliveredCount", mock.Anything, int64(3)).Return(2, nil).Once()
	f.messages.On("UpdateContent", mock.Anything, int64(3), "edited").Return(nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	msg, err := f.svc.UpdateMessage(context.Background(), 3, 1, "edited")
	require.NoError(t, err)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "edited", *msg.Content)
	f.assertExpectations(t)
}

func TestDeleteMessageRemovesOrphanedFiles(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5, SenderID: 1}, nil).Once()
	f.messages.On("DeleteMessage", mock.Anything, int64(3)).Return([]string{"a/b.png"}, nil).Once()
	f.files.On("Remove", mock.Anything, "a/b.png").Return(nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	err := f.svc.DeleteMessage(context.Background(), 3, 1)
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestDeleteMessageNotSender(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, SenderID: 2}, nil).Once()

	err := f.svc.DeleteMessage(context.Background(), 3, 1)
	assert.ErrorIs(t, err, ErrNotSender)
	f.assertExpectations(t)
}

func TestTogglePublicPinOwnerOnly(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5}, nil).Once()
	f.groups.On("GetGroupByConversation", mock.Anything, int64(5)).Return(models.Group{ID: 7, OwnerID: 2}, nil).Once()

	_, err := f.svc.TogglePin(context.Background(), 5, 3, 1, true)
	assert.ErrorIs(t, err, ErrNotOwner)
	f.assertExpectations(t)
}

func TestTogglePinWrongConversation(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 6}, nil).Once()

	_, err := f.svc.TogglePin(context.Background(), 5, 3, 1, false)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
	f.assertExpectations(t)
}

func TestToggleReactionBroadcasts(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 5}, nil).Once()
	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(true, nil).Once()
	f.extras.On("ToggleReaction", mock.Anything, int64(3), int64(1), "👍").Return(true, nil).Once()
	f.notifier.On("Broadcast", mock.Anything, int64(1), mock.Anything).Once()

	added, err := f.svc.ToggleReaction(context.Background(), 3, 1, "👍")
	require.NoError(t, err)
	assert.True(t, added)
	f.assertExpectations(t)
}

func TestToggleConversationFlagNotAMember(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("ToggleFlag", mock.Anything, int64(5), int64(1), repositories.FlagMuted).Return(false, repositories.ErrMembershipNotFound).Once()

	_, err := f.svc.ToggleConversationFlag(context.Background(), 5, 1, repositories.FlagMuted)
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}

func TestStartDirectConversationWithSelf(t *testing.T) {
	f := newSessionFixture()

	_, _, err := f.svc.StartDirectConversation(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSelfConversation)
	f.assertExpectations(t)
}

func TestStartDirectConversationBlocked(t *testing.T) {
	f := newSessionFixture()

	f.extras.On("AnyBlockBetween", mock.Anything, int64(1), int64(2)).Return(true, nil).Once()

	_, _, err := f.svc.StartDirectConversation(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrBlocked)
	f.assertExpectations(t)
}

func TestUpdateLastSeenRejectsForeignMessage(t *testing.T) {
	f := newSessionFixture()

	f.messages.On("GetMessage", mock.Anything, int64(3)).Return(models.Message{ID: 3, ConversationID: 9}, nil).Once()

	err := f.svc.UpdateLastSeen(context.Background(), 5, 1, 3)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
	f.assertExpectations(t)
}

func TestSearchMessagesRequiresMembership(t *testing.T) {
	f := newSessionFixture()

	f.memberships.On("IsActiveMember", mock.Anything, int64(5), int64(1)).Return(false, nil).Once()

	_, err := f.svc.SearchMessages(context.Background(), 5, 1, "needle")
	assert.ErrorIs(t, err, ErrNotAMember)
	f.assertExpectations(t)
}

func TestSendRepoErrorPropagates(t *testing.T) {
	f := newSessionFixture()

	f.conversations.On("GetConversation", mock.Anything, int64(5)).Return(models.Conversation{}, assert.AnError).Once()

	_, err := f.svc.Send(context.Background(), SendParams{ConversationID: 5, SenderID: 1, Content: strPtr("hi")})
	assert.ErrorIs(t, err, assert.AnError)
	f.assertExpectations(t)
}
