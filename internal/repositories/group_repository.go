package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/missastane/chat-engine/internal/models"
)

// LeaveResult reports the side effects of a member leaving a group.
type LeaveResult struct {
	// PromotedUserID is set when the departure left the group without an
	// admin and an existing member was promoted.
	PromotedUserID *int64
	// NewOwnerID is set when the departing member owned the group and
	// ownership moved to a remaining member.
	NewOwnerID *int64
	// GroupDeleted is true when the last member left and the group plus its
	// conversation were removed.
	GroupDeleted bool
	// AvatarPath carries the stored avatar file to delete after commit when
	// the group was removed.
	AvatarPath *string
}

// GroupRepository persists group metadata on top of conversations.
type GroupRepository interface {
	CreateGroup(ctx context.Context, name string, ownerID int64, privacy models.PrivacyType, memberIDs []int64) (models.Group, models.Conversation, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	GetGroupByConversation(ctx context.Context, conversationID int64) (models.Group, error)
	Leave(ctx context.Context, groupID, userID int64) (LeaveResult, error)
	TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) error
	SetAvatar(ctx context.Context, groupID int64, avatarPath *string) (previous *string, err error)
	Rename(ctx context.Context, groupID int64, name string) error
	SetPrivacy(ctx context.Context, groupID int64, privacy models.PrivacyType) error
	DeleteGroup(ctx context.Context, groupID int64) (avatarPath *string, err error)
}

// GroupRepo is a sqlx-backed repository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, conversation_id, name, owner_id, avatar_path, created_at`

// CreateGroup creates the backing conversation, the group row, the owner's
// admin membership and the initial member memberships in one transaction.
func (r *GroupRepo) CreateGroup(ctx context.Context, name string, ownerID int64, privacy models.PrivacyType, memberIDs []int64) (models.Group, models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (conversation_hash, is_group, privacy_type)
        VALUES (NULL, TRUE, $1) RETURNING `+conversationColumns, privacy).StructScan(&conv)
	if err != nil {
		return models.Group{}, models.Conversation{}, err
	}

	var group models.Group
	err = tx.QueryRowxContext(ctx, `INSERT INTO groups (conversation_id, name, owner_id)
        VALUES ($1, $2, $3) RETURNING `+groupColumns, conv.ID, name, ownerID).StructScan(&group)
	if err != nil {
		return models.Group{}, models.Conversation{}, err
	}

	now := time.Now()
	if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
        VALUES ($1, $2, $3, $4)`, conv.ID, ownerID, models.RoleAdmin, now); err != nil {
		return models.Group{}, models.Conversation{}, err
	}
	for _, id := range memberIDs {
		if id == ownerID {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, conv.ID, id, models.RoleMember, now); err != nil {
			return models.Group{}, models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, models.Conversation{}, err
	}
	return group, conv, nil
}

// GetGroup fetches a group by id.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var g models.Group
	err := r.db.GetContext(ctx, &g, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return g, err
}

// GetGroupByConversation fetches the group behind a conversation.
func (r *GroupRepo) GetGroupByConversation(ctx context.Context, conversationID int64) (models.Group, error) {
	var g models.Group
	err := r.db.GetContext(ctx, &g, `SELECT `+groupColumns+` FROM groups WHERE conversation_id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return g, err
}

// Leave closes the member's row and repairs group invariants in the same
// transaction. When the departing member owns the group, ownership moves to
// the earliest-joined remaining admin, or the earliest-joined member is
// promoted to admin and made owner when no other admin exists. When the
// group empties out entirely the group and conversation rows are removed.
func (r *GroupRepo) Leave(ctx context.Context, groupID, userID int64) (LeaveResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return LeaveResult{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	err = tx.QueryRowxContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id=$1 FOR UPDATE`, groupID).StructScan(&group)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrGroupNotFound
		return LeaveResult{}, err
	}
	if err != nil {
		return LeaveResult{}, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE conversation_members SET left_at=$3, role=$4
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`,
		group.ConversationID, userID, time.Now(), models.RoleMember)
	if err != nil {
		return LeaveResult{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return LeaveResult{}, err
	}
	if count == 0 {
		err = ErrMembershipNotFound
		return LeaveResult{}, err
	}

	var remaining int
	if err = sqlx.GetContext(ctx, tx, &remaining, `SELECT COUNT(*) FROM conversation_members
        WHERE conversation_id=$1 AND left_at IS NULL`, group.ConversationID); err != nil {
		return LeaveResult{}, err
	}

	result := LeaveResult{}
	if remaining == 0 {
		result.GroupDeleted = true
		result.AvatarPath = group.AvatarPath
		if _, err = tx.ExecContext(ctx, `DELETE FROM join_requests WHERE conversation_id=$1`, group.ConversationID); err != nil {
			return LeaveResult{}, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
			return LeaveResult{}, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, group.ConversationID); err != nil {
			return LeaveResult{}, err
		}
	} else if userID == group.OwnerID {
		// The owner left: hand the group to the earliest-joined remaining
		// admin, promoting the earliest-joined member when no admin is left.
		var successor int64
		err = sqlx.GetContext(ctx, tx, &successor, `SELECT user_id FROM conversation_members
            WHERE conversation_id=$1 AND left_at IS NULL AND role=$2
            ORDER BY joined_at ASC, id ASC LIMIT 1`, group.ConversationID, models.RoleAdmin)
		if errors.Is(err, sql.ErrNoRows) {
			err = sqlx.GetContext(ctx, tx, &successor, `UPDATE conversation_members SET role=$2
                WHERE id = (SELECT id FROM conversation_members
                    WHERE conversation_id=$1 AND left_at IS NULL
                    ORDER BY joined_at ASC, id ASC LIMIT 1)
                RETURNING user_id`, group.ConversationID, models.RoleAdmin)
			if err == nil {
				result.PromotedUserID = &successor
			}
		}
		if err != nil {
			return LeaveResult{}, err
		}
		result.NewOwnerID = &successor
		if _, err = tx.ExecContext(ctx, `UPDATE groups SET owner_id=$2 WHERE id=$1`,
			groupID, successor); err != nil {
			return LeaveResult{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return LeaveResult{}, err
	}
	return result, nil
}

// TransferOwnership makes toUserID the owner and admin, demoting the previous
// owner to member.
func (r *GroupRepo) TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conversationID int64
	err = sqlx.GetContext(ctx, tx, &conversationID, `SELECT conversation_id FROM groups WHERE id=$1 AND owner_id=$2 FOR UPDATE`, groupID, fromUserID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrGroupNotFound
		return err
	}
	if err != nil {
		return err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE conversation_members SET role=$3
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`,
		conversationID, toUserID, models.RoleAdmin)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		err = ErrMembershipNotFound
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversation_members SET role=$3
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`,
		conversationID, fromUserID, models.RoleMember); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE groups SET owner_id=$2 WHERE id=$1`, groupID, toUserID); err != nil {
		return err
	}

	return tx.Commit()
}

// SetAvatar swaps the avatar path and returns the previous one so the caller
// can delete the replaced file after the update lands.
func (r *GroupRepo) SetAvatar(ctx context.Context, groupID int64, avatarPath *string) (*string, error) {
	var previous *string
	err := r.db.GetContext(ctx, &previous, `SELECT avatar_path FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE groups SET avatar_path=$2 WHERE id=$1`, groupID, avatarPath); err != nil {
		return nil, err
	}
	return previous, nil
}

// Rename updates the display name.
func (r *GroupRepo) Rename(ctx context.Context, groupID int64, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET name=$2 WHERE id=$1`, groupID, name)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// SetPrivacy changes the join policy on the backing conversation.
func (r *GroupRepo) SetPrivacy(ctx context.Context, groupID int64, privacy models.PrivacyType) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET privacy_type=$2
        WHERE id=(SELECT conversation_id FROM groups WHERE id=$1)`, groupID, privacy)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// DeleteGroup removes the group, its memberships, pending requests and the
// backing conversation, returning the avatar path for post-commit cleanup.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int64) (*string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	err = tx.QueryRowxContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id=$1 FOR UPDATE`, groupID).StructScan(&group)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrGroupNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM join_requests WHERE conversation_id=$1`, group.ConversationID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversation_members WHERE conversation_id=$1`, group.ConversationID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, group.ConversationID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return group.AvatarPath, nil
}
