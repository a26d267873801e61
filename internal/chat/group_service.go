package chat

import (
	"context"
	"errors"
	"log"

	"github.com/missastane/chat-engine/internal/models"
	"github.com/missastane/chat-engine/internal/repositories"
)

// GroupService owns the group lifecycle: creation, membership management,
// the join-request state machine, leaving with its promotion cascade, and
// ownership transfer.
type GroupService struct {
	groups        repositories.GroupRepository
	memberships   repositories.MembershipRepository
	conversations repositories.ConversationRepository
	joinRequests  repositories.JoinRequestRepository
	files         FileRemover
	notifier      Notifier
}

// NewGroupService wires the group service.
func NewGroupService(
	groups repositories.GroupRepository,
	memberships repositories.MembershipRepository,
	conversations repositories.ConversationRepository,
	joinRequests repositories.JoinRequestRepository,
	files FileRemover,
	notifier Notifier,
) *GroupService {
	return &GroupService{
		groups:        groups,
		memberships:   memberships,
		conversations: conversations,
		joinRequests:  joinRequests,
		files:         files,
		notifier:      notifier,
	}
}

// CreateGroupParams is the input for CreateGroup.
type CreateGroupParams struct {
	Name       string
	OwnerID    int64
	Privacy    models.PrivacyType
	MemberIDs  []int64
	AvatarPath *string
}

// CreateGroup creates the conversation, the group, the owner's admin row and
// the initial memberships in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, p CreateGroupParams) (models.Group, models.Conversation, error) {
	if p.Name == "" {
		return models.Group{}, models.Conversation{}, ErrEmptyGroupName
	}

	group, conv, err := s.groups.CreateGroup(ctx, p.Name, p.OwnerID, p.Privacy, p.MemberIDs)
	if err != nil {
		return models.Group{}, models.Conversation{}, err
	}
	if p.AvatarPath != nil {
		if _, err := s.groups.SetAvatar(ctx, group.ID, p.AvatarPath); err != nil {
			return models.Group{}, models.Conversation{}, err
		}
		group.AvatarPath = p.AvatarPath
	}
	return group, conv, nil
}

// Members lists the group's active members ordered by join time.
func (s *GroupService) Members(ctx context.Context, groupID, userID int64) ([]models.Membership, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	active, err := s.memberships.IsActiveMember(ctx, group.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNotAMember
	}
	return s.memberships.ListActiveMembers(ctx, group.ConversationID)
}

// AddMembers adds users as regular members. Admin only. Users who already
// hold an active membership are skipped; the added rows are returned.
func (s *GroupService) AddMembers(ctx context.Context, groupID, actorID int64, userIDs []int64) ([]models.Membership, error) {
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}

	added := make([]models.Membership, 0, len(userIDs))
	for _, id := range userIDs {
		m, err := s.memberships.AddMember(ctx, group.ConversationID, id, models.RoleMember)
		if errors.Is(err, repositories.ErrDuplicateMembership) {
			continue
		}
		if err != nil {
			return nil, err
		}
		added = append(added, m)
	}
	return added, nil
}

// RemoveMember kicks a member out. Admin only; removing yourself goes
// through Leave so the promotion cascade runs.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, userID int64) error {
	group, err := s.requireAdmin(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if actorID == userID {
		return ErrForbidden
	}
	err = s.memberships.RemoveMember(ctx, group.ConversationID, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return ErrTargetNotActiveMember
	}
	return err
}

// UpdateMemberRole changes a member's role. Owner only.
func (s *GroupService) UpdateMemberRole(ctx context.Context, groupID, actorID, userID int64, role models.MemberRole) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	err = s.memberships.UpdateRole(ctx, group.ConversationID, userID, role)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return ErrTargetNotActiveMember
	}
	return err
}

// RequestJoin submits a join request. Open groups approve and attach the
// membership immediately; approval-gated groups leave the request pending
// for the owner. Private groups are invite only.
func (s *GroupService) RequestJoin(ctx context.Context, groupID, userID int64) (models.JoinRequest, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	conv, err := s.conversations.GetConversation(ctx, group.ConversationID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if conv.PrivacyType == models.PrivacyPrivate {
		return models.JoinRequest{}, ErrForbidden
	}

	active, err := s.memberships.IsActiveMember(ctx, group.ConversationID, userID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if active {
		return models.JoinRequest{}, ErrAlreadyMember
	}

	return s.joinRequests.Create(ctx, group.ConversationID, userID, conv.PrivacyType == models.PrivacyOpen)
}

// PendingRequests lists the group's pending join requests. Owner only.
func (s *GroupService) PendingRequests(ctx context.Context, groupID, actorID int64) ([]models.JoinRequest, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	return s.joinRequests.PendingByConversation(ctx, group.ConversationID)
}

// RespondToJoinRequest settles a pending request. Owner only; approval
// attaches the membership in the same transaction.
func (s *GroupService) RespondToJoinRequest(ctx context.Context, requestID, actorID int64, approve bool) (models.JoinRequest, error) {
	req, err := s.joinRequests.GetByID(ctx, requestID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	group, err := s.groups.GetGroupByConversation(ctx, req.ConversationID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if group.OwnerID != actorID {
		return models.JoinRequest{}, ErrNotOwner
	}

	status := models.JoinRejected
	if approve {
		status = models.JoinApproved
	}
	return s.joinRequests.Respond(ctx, requestID, status, approve)
}

// Leave exits the group. A departing owner hands the group to the
// earliest-joined remaining admin, or to the earliest-joined member promoted
// to admin when no other admin exists; when nobody remains, the group, its
// conversation and its avatar are removed.
func (s *GroupService) Leave(ctx context.Context, groupID, userID int64) (repositories.LeaveResult, error) {
	res, err := s.groups.Leave(ctx, groupID, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return repositories.LeaveResult{}, ErrNotAMember
	}
	if err != nil {
		return repositories.LeaveResult{}, err
	}
	if res.GroupDeleted && res.AvatarPath != nil {
		if err := s.files.Remove(ctx, *res.AvatarPath); err != nil {
			log.Printf("delete group avatar %s: %v", *res.AvatarPath, err)
		}
	}
	return res, nil
}

// TransferOwnership hands the group to another active member, atomically
// promoting them and demoting the current owner.
func (s *GroupService) TransferOwnership(ctx context.Context, groupID, actorID, toUserID int64) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	err = s.groups.TransferOwnership(ctx, groupID, actorID, toUserID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return ErrTargetNotActiveMember
	}
	return err
}

// UpdateGroup renames the group and/or changes its join policy. Owner only.
func (s *GroupService) UpdateGroup(ctx context.Context, groupID, actorID int64, name *string, privacy *models.PrivacyType) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	if name != nil {
		if *name == "" {
			return ErrEmptyGroupName
		}
		if err := s.groups.Rename(ctx, groupID, *name); err != nil {
			return err
		}
	}
	if privacy != nil {
		if err := s.groups.SetPrivacy(ctx, groupID, *privacy); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAvatar swaps the avatar. Owner only; the replaced file is deleted
// from the store after the row update.
func (s *GroupService) UpdateAvatar(ctx context.Context, groupID, actorID int64, avatarPath string) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	previous, err := s.groups.SetAvatar(ctx, groupID, &avatarPath)
	if err != nil {
		return err
	}
	s.removeStoredFile(ctx, previous)
	return nil
}

// RemoveAvatar clears the avatar. Owner only.
func (s *GroupService) RemoveAvatar(ctx context.Context, groupID, actorID int64) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	previous, err := s.groups.SetAvatar(ctx, groupID, nil)
	if err != nil {
		return err
	}
	s.removeStoredFile(ctx, previous)
	return nil
}

// DeleteGroup tears the group down entirely. Owner only.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, actorID int64) error {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != actorID {
		return ErrNotOwner
	}
	avatarPath, err := s.groups.DeleteGroup(ctx, groupID)
	if err != nil {
		return err
	}
	s.removeStoredFile(ctx, avatarPath)
	return nil
}

// Group fetches group metadata for members.
func (s *GroupService) Group(ctx context.Context, groupID, userID int64) (models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	active, err := s.memberships.IsActiveMember(ctx, group.ConversationID, userID)
	if err != nil {
		return models.Group{}, err
	}
	if !active {
		return models.Group{}, ErrNotAMember
	}
	return group, nil
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID, actorID int64) (models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	m, err := s.memberships.GetActive(ctx, group.ConversationID, actorID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.Group{}, ErrNotAMember
	}
	if err != nil {
		return models.Group{}, err
	}
	if m.Role != models.RoleAdmin {
		return models.Group{}, ErrForbidden
	}
	return group, nil
}

func (s *GroupService) removeStoredFile(ctx context.Context, path *string) {
	if path == nil || *path == "" {
		return
	}
	if err := s.files.Remove(ctx, *path); err != nil {
		log.Printf("delete stored file %s: %v", *path, err)
	}
}
