package chat

import (
	"context"
	"errors"
	"log"

	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/repositories"
)

// SessionService orchestrates message traffic: send, reply, private reply,
// forward, fetch with delivery acknowledgement, edits, deletes and the
// per-message annotations. Every mutating operation starts with a membership
// gate; multi-row writes are delegated to repository transactions and the
// notifier fires only after they commit.
type SessionService struct {
	conversations repositories.ConversationRepository
	memberships   repositories.MembershipRepository
	messages      repositories.MessageRepository
	statuses      repositories.StatusRepository
	groups        repositories.GroupRepository
	extras        repositories.ExtrasRepository
	roles         RoleDirectory
	files         FileRemover
	notifier      Notifier
}

// NewSessionService wires the session service.
func NewSessionService(
	conversations repositories.ConversationRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
	statuses repositories.StatusRepository,
	groups repositories.GroupRepository,
	extras repositories.ExtrasRepository,
	roles RoleDirectory,
	files FileRemover,
	notifier Notifier,
) *SessionService {
	return &SessionService{
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		statuses:      statuses,
		groups:        groups,
		extras:        extras,
		roles:         roles,
		files:         files,
		notifier:      notifier,
	}
}

// SendParams is the input for Send and ReplyTo.
type SendParams struct {
	ConversationID int64
	SenderID       int64
	Content        *string
	Media          []repositories.MediaInput
	ParentID       *int64
}

// MessagePage is one fetched page plus the caller's first-unread marker.
type MessagePage struct {
	Messages      []models.Message `json:"messages"`
	FirstUnreadID *int64           `json:"first_unread_id,omitempty"`
}

// Send posts a message into a conversation. Recipients are the active
// members other than the sender at this instant; the snapshot is frozen into
// status rows, so later joiners see the message but carry no delivery state
// for it.
func (s *SessionService) Send(ctx context.Context, p SendParams) (models.Message, error) {
	conv, err := s.conversations.GetConversation(ctx, p.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.canPost(ctx, conv, p.SenderID); err != nil {
		return models.Message{}, err
	}
	if isEmpty(p.Content, len(p.Media)) {
		return models.Message{}, ErrEmptyMessage
	}
	if p.ParentID != nil {
		if err := s.checkReplyTarget(ctx, conv.ID, p.SenderID, *p.ParentID); err != nil {
			return models.Message{}, err
		}
	}

	recipients, err := s.memberships.ActiveMemberIDsExcept(ctx, conv.ID, p.SenderID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		ConversationID: conv.ID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		ParentID:       p.ParentID,
		Media:          p.Media,
		Recipients:     recipients,
	})
	if err != nil {
		return models.Message{}, err
	}

	s.notifier.Broadcast(ctx, p.SenderID, models.ChatEvent{
		Type:           EventMessage,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	return msg, nil
}

// ReplyTo posts a threaded reply inside the same conversation.
func (s *SessionService) ReplyTo(ctx context.Context, p SendParams, parentID int64) (models.Message, error) {
	p.ParentID = &parentID
	return s.Send(ctx, p)
}

// SendPrivateReply spawns a reply to a group message into the 1:1
// conversation between the replier and the original author, lazily creating
// that conversation under the deterministic participant hash. The author is
// the only recipient.
func (s *SessionService) SendPrivateReply(ctx context.Context, sourceMessageID, senderID int64, content *string, media []repositories.MediaInput) (models.Message, error) {
	source, err := s.messages.GetMessage(ctx, sourceMessageID)
	if err != nil {
		return models.Message{}, err
	}
	if source.SenderID == senderID {
		return models.Message{}, ErrSelfReplyForbidden
	}

	active, err := s.memberships.IsActiveMember(ctx, source.ConversationID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if !active {
		return models.Message{}, ErrPrivateReplyForbidden
	}
	elevated, err := s.roles.IsElevated(ctx, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if elevated {
		return models.Message{}, ErrPrivateReplyForbidden
	}
	blocked, err := s.extras.AnyBlockBetween(ctx, senderID, source.SenderID)
	if err != nil {
		return models.Message{}, err
	}
	if blocked {
		return models.Message{}, ErrBlocked
	}
	if isEmpty(content, len(media)) {
		return models.Message{}, ErrEmptyMessage
	}

	conv, _, err := s.conversations.CreateOrGetDirect(ctx, []int64{senderID, source.SenderID})
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		ConversationID:       conv.ID,
		SenderID:             senderID,
		Content:              content,
		PrivateReplySourceID: &source.ID,
		Media:                media,
		Recipients:           []int64{source.SenderID},
		EnsureMemberIDs:      []int64{senderID, source.SenderID},
	})
	if err != nil {
		return models.Message{}, err
	}

	s.notifier.Broadcast(ctx, senderID, models.ChatEvent{
		Type:           EventMessage,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	return msg, nil
}

// Forward duplicates a message into every target conversation. All targets
// are validated up front and written in one transaction: one bad target
// aborts the whole forward.
func (s *SessionService) Forward(ctx context.Context, messageID, senderID int64, targetConversationIDs []int64) ([]models.Message, error) {
	source, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	active, err := s.memberships.IsActiveMember(ctx, source.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNotAMember
	}

	targets := make([]repositories.ForwardTarget, 0, len(targetConversationIDs))
	for _, convID := range targetConversationIDs {
		conv, err := s.conversations.GetConversation(ctx, convID)
		if err != nil {
			return nil, err
		}
		if err := s.canPost(ctx, conv, senderID); err != nil {
			return nil, err
		}
		recipients, err := s.memberships.ActiveMemberIDsExcept(ctx, conv.ID, senderID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, repositories.ForwardTarget{
			ConversationID: conv.ID,
			Recipients:     recipients,
		})
	}

	msgs, err := s.messages.ForwardMessage(ctx, source, senderID, targets)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		s.notifier.Broadcast(ctx, senderID, models.ChatEvent{
			Type:           EventMessage,
			ConversationID: msgs[i].ConversationID,
			Message:        &msgs[i],
		})
	}
	return msgs, nil
}

// FetchMessages returns a newest-first page and, as a side effect, advances
// the caller's pending rows in the page from sent to delivered. The
// first-unread marker is the earliest message that was already delivered to
// the caller but not yet read before this fetch, so a first-ever fetch of a
// conversation carries no marker.
func (s *SessionService) FetchMessages(ctx context.Context, conversationID, userID int64, limit, offset int) (MessagePage, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return MessagePage{}, err
	}

	msgs, err := s.messages.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return MessagePage{}, err
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	// The marker reflects what was delivered before this fetch, so it has
	// to be computed before the page transitions sent rows to delivered.
	firstUnread, err := s.statuses.FirstUnread(ctx, userID, ids)
	if err != nil {
		return MessagePage{}, err
	}
	delivered, err := s.statuses.MarkDelivered(ctx, userID, ids)
	if err != nil {
		return MessagePage{}, err
	}

	if len(delivered) > 0 {
		s.notifier.Broadcast(ctx, userID, models.ChatEvent{
			Type:           EventStatus,
			ConversationID: conversationID,
			UserID:         userID,
		})
	}
	return MessagePage{Messages: msgs, FirstUnreadID: firstUnread}, nil
}

// MarkRead acknowledges delivered messages as read for the caller and
// returns the ids that transitioned. Messages still in sent state stay put.
func (s *SessionService) MarkRead(ctx context.Context, conversationID, userID int64, messageIDs []int64) ([]int64, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	changed, err := s.statuses.MarkRead(ctx, userID, messageIDs)
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		s.notifier.Broadcast(ctx, userID, models.ChatEvent{
			Type:           EventStatus,
			ConversationID: conversationID,
			UserID:         userID,
		})
	}
	return changed, nil
}

// UpdateMessage edits the body. Only the sender may edit, and only while at
// least one recipient has not read the message.
func (s *SessionService) UpdateMessage(ctx context.Context, messageID, userID int64, content string) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrNotSender
	}
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}

	pending, err := s.statuses.UndeliveredCount(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if pending == 0 {
		return models.Message{}, ErrAlreadyFullyDelivered
	}

	if err := s.messages.UpdateContent(ctx, messageID, content); err != nil {
		return models.Message{}, err
	}
	msg.Content = &content
	msg.Type = models.DeriveMessageType(&content, len(msg.Media))

	s.notifier.Broadcast(ctx, userID, models.ChatEvent{
		Type:           EventMessageUpdated,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})
	return msg, nil
}

// DeleteMessage removes the message for everyone. Attachment files whose
// last database reference was removed are deleted from the store after
// commit; a failing file delete is logged, the message stays deleted.
func (s *SessionService) DeleteMessage(ctx context.Context, messageID, userID int64) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}

	orphaned, err := s.messages.DeleteMessage(ctx, messageID)
	if err != nil {
		return err
	}
	for _, path := range orphaned {
		if err := s.files.Remove(ctx, path); err != nil {
			log.Printf("delete orphaned attachment %s: %v", path, err)
		}
	}

	s.notifier.Broadcast(ctx, userID, models.ChatEvent{
		Type:           EventDeleteForAll,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
	})
	return nil
}

// DeleteForMe hides the message from the caller only by dropping their
// status row. The message and other recipients are untouched.
func (s *SessionService) DeleteForMe(ctx context.Context, messageID, userID int64) error {
	return s.statuses.DeleteForUser(ctx, messageID, userID)
}

// SearchMessages finds text matches inside one conversation.
func (s *SessionService) SearchMessages(ctx context.Context, conversationID, userID int64, query string) ([]models.Message, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.SearchMessages(ctx, conversationID, query)
}

// UpdateLastSeen moves the caller's last-seen pointer to the given message.
func (s *SessionService) UpdateLastSeen(ctx context.Context, conversationID, userID, messageID int64) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return repositories.ErrMessageNotFound
	}
	return s.memberships.SetLastSeen(ctx, conversationID, userID, messageID)
}

// LastSeen reads the caller's last-seen pointer; nil when never set.
func (s *SessionService) LastSeen(ctx context.Context, conversationID, userID int64) (*int64, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.memberships.LastSeen(ctx, conversationID, userID)
}

// ToggleReaction adds or removes the caller's emoji on a message.
func (s *SessionService) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return false, err
	}

	added, err := s.extras.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	s.notifier.Broadcast(ctx, userID, models.ChatEvent{
		Type:           EventReaction,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Emoji:          emoji,
	})
	return added, nil
}

// ListReactions returns a message's reactions grouped per emoji.
func (s *SessionService) ListReactions(ctx context.Context, messageID, userID int64) ([]models.ReactionGroup, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.extras.ListReactions(ctx, messageID)
}

// TogglePin pins or unpins a message. A public pin in a group is reserved
// for the group owner and displaces the previous public pin.
func (s *SessionService) TogglePin(ctx context.Context, conversationID, messageID, userID int64, isPublic bool) (bool, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return false, err
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.ConversationID != conversationID {
		return false, repositories.ErrMessageNotFound
	}

	if isPublic {
		group, err := s.groups.GetGroupByConversation(ctx, conversationID)
		if err == nil && group.OwnerID != userID {
			return false, ErrNotOwner
		}
		if err != nil && !errors.Is(err, repositories.ErrGroupNotFound) {
			return false, err
		}
	}

	pinned, err := s.extras.TogglePin(ctx, conversationID, messageID, userID, isPublic)
	if err != nil {
		return false, err
	}
	if isPublic {
		s.notifier.Broadcast(ctx, userID, models.ChatEvent{
			Type:           EventPin,
			ConversationID: conversationID,
			MessageID:      messageID,
			UserID:         userID,
		})
	}
	return pinned, nil
}

// ListPins returns the public pin and the caller's private pins.
func (s *SessionService) ListPins(ctx context.Context, conversationID, userID int64) ([]models.PinnedMessage, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.extras.ListPins(ctx, conversationID, userID)
}

// ToggleFavorite stars or unstars a message for the caller.
func (s *SessionService) ToggleFavorite(ctx context.Context, messageID, userID int64) (bool, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := s.requireMember(ctx, msg.ConversationID, userID); err != nil {
		return false, err
	}
	return s.extras.ToggleFavorite(ctx, messageID, userID)
}

// ListFavorites returns the caller's starred messages.
func (s *SessionService) ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteMessage, error) {
	return s.extras.ListFavorites(ctx, userID)
}

// ToggleConversationFlag flips a per-user preference flag (archived, muted,
// favorited, pinned) on the caller's membership row and reports the new
// value.
func (s *SessionService) ToggleConversationFlag(ctx context.Context, conversationID, userID int64, flag repositories.MemberFlag) (bool, error) {
	value, err := s.memberships.ToggleFlag(ctx, conversationID, userID, flag)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return false, ErrNotAMember
	}
	return value, err
}

// StartDirectConversation resolves or creates the 1:1 conversation between
// two users.
func (s *SessionService) StartDirectConversation(ctx context.Context, userID, targetID int64) (models.Conversation, bool, error) {
	if userID == targetID {
		return models.Conversation{}, false, ErrSelfConversation
	}
	blocked, err := s.extras.AnyBlockBetween(ctx, userID, targetID)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if blocked {
		return models.Conversation{}, false, ErrBlocked
	}
	return s.conversations.CreateOrGetDirect(ctx, []int64{userID, targetID})
}

// Block records a block on a user or conversation.
func (s *SessionService) Block(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	return s.extras.Block(ctx, blockerID, target)
}

// Unblock removes a block.
func (s *SessionService) Unblock(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	return s.extras.Unblock(ctx, blockerID, target)
}

func (s *SessionService) requireMember(ctx context.Context, conversationID, userID int64) error {
	active, err := s.memberships.IsActiveMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotAMember
	}
	return nil
}

// canPost is the gate in front of every message write: active membership,
// the elevated-role restriction for groups, and block checks for direct
// conversations.
func (s *SessionService) canPost(ctx context.Context, conv models.Conversation, senderID int64) error {
	if err := s.requireMember(ctx, conv.ID, senderID); err != nil {
		return err
	}

	if conv.IsGroup {
		elevated, err := s.roles.IsElevated(ctx, senderID)
		if err != nil {
			return err
		}
		if elevated {
			return ErrGroupSendForbidden
		}
		return nil
	}

	blocked, err := s.extras.IsBlocked(ctx, senderID, models.BlockConversation(conv.ID))
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	others, err := s.memberships.ActiveMemberIDsExcept(ctx, conv.ID, senderID)
	if err != nil {
		return err
	}
	for _, other := range others {
		blocked, err := s.extras.AnyBlockBetween(ctx, senderID, other)
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}
	}
	return nil
}

// checkReplyTarget ensures the parent is readable by the sender. Parents in
// a different conversation are allowed only when the sender is a member
// there, which covers replies chained off private-reply sources.
func (s *SessionService) checkReplyTarget(ctx context.Context, conversationID, senderID, parentID int64) error {
	parent, err := s.messages.GetMessage(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.ConversationID == conversationID {
		return nil
	}
	active, err := s.memberships.IsActiveMember(ctx, parent.ConversationID, senderID)
	if err != nil {
		return err
	}
	if !active {
		return ErrForbidden
	}
	return nil
}

func isEmpty(content *string, mediaCount int) bool {
	return (content == nil || *content == "") && mediaCount == 0
}
