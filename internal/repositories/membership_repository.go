package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/missastane/chat-engine/internal/models"
)

// MemberFlag names a per-user conversation preference column.
type MemberFlag string

const (
	FlagArchived  MemberFlag = "archived"
	FlagMuted     MemberFlag = "muted"
	FlagFavorited MemberFlag = "favorited"
	FlagPinned    MemberFlag = "pinned"
)

// MembershipRepository is the source of truth for who belongs to which
// conversation. Every authorization gate in the service layer goes through
// IsActiveMember.
type MembershipRepository interface {
	IsActiveMember(ctx context.Context, conversationID, userID int64) (bool, error)
	GetActive(ctx context.Context, conversationID, userID int64) (models.Membership, error)
	AddMember(ctx context.Context, conversationID, userID int64, role models.MemberRole) (models.Membership, error)
	RemoveMember(ctx context.Context, conversationID, userID int64) error
	UpdateRole(ctx context.Context, conversationID, userID int64, role models.MemberRole) error
	ListActiveMembers(ctx context.Context, conversationID int64) ([]models.Membership, error)
	ActiveMemberIDsExcept(ctx context.Context, conversationID, excludeUserID int64) ([]int64, error)
	CountActive(ctx context.Context, conversationID int64) (int, error)
	ToggleFlag(ctx context.Context, conversationID, userID int64, flag MemberFlag) (bool, error)
	SetLastSeen(ctx context.Context, conversationID, userID, messageID int64) error
	LastSeen(ctx context.Context, conversationID, userID int64) (*int64, error)
	PurgeLeft(ctx context.Context, conversationID, userID int64) error
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

const membershipColumns = `id, conversation_id, user_id, role, archived, muted, favorited, pinned, last_seen_message_id, joined_at, left_at`

// IsActiveMember checks whether the user holds an open membership row.
func (r *MembershipRepo) IsActiveMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_members
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL)`, conversationID, userID)
	return exists, err
}

// GetActive fetches the user's open membership row.
func (r *MembershipRepo) GetActive(ctx context.Context, conversationID, userID int64) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM conversation_members
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// AddMember inserts a fresh membership row, or revives a soft-closed one.
// The partial unique index rejects a second active row; that conflict is
// surfaced as ErrDuplicateMembership.
func (r *MembershipRepo) AddMember(ctx context.Context, conversationID, userID int64, role models.MemberRole) (models.Membership, error) {
	var m models.Membership
	err := r.db.QueryRowxContext(ctx, `UPDATE conversation_members
        SET left_at=NULL, role=$3, joined_at=$4
        WHERE id = (SELECT id FROM conversation_members
            WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NOT NULL
            ORDER BY joined_at DESC LIMIT 1)
        RETURNING `+membershipColumns, conversationID, userID, role, time.Now()).StructScan(&m)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, translateUniqueViolation(err)
	}

	err = r.db.QueryRowxContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
        VALUES ($1, $2, $3, $4) RETURNING `+membershipColumns, conversationID, userID, role, time.Now()).StructScan(&m)
	if err != nil {
		return models.Membership{}, translateUniqueViolation(err)
	}
	return m, nil
}

// RemoveMember soft-closes the membership and demotes the role. The row
// persists for history.
func (r *MembershipRepo) RemoveMember(ctx context.Context, conversationID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_members SET left_at=$3, role=$4
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`,
		conversationID, userID, time.Now(), models.RoleMember)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// UpdateRole changes the member's role on the open row.
func (r *MembershipRepo) UpdateRole(ctx context.Context, conversationID, userID int64, role models.MemberRole) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_members SET role=$3
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`, conversationID, userID, role)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// ListActiveMembers returns open memberships ordered by join time.
func (r *MembershipRepo) ListActiveMembers(ctx context.Context, conversationID int64) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.SelectContext(ctx, &members, `SELECT `+membershipColumns+` FROM conversation_members
        WHERE conversation_id=$1 AND left_at IS NULL ORDER BY joined_at ASC`, conversationID)
	return members, err
}

// ActiveMemberIDsExcept returns the recipient snapshot for a message: every
// active member at this instant except the sender.
func (r *MembershipRepo) ActiveMemberIDsExcept(ctx context.Context, conversationID, excludeUserID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_members
        WHERE conversation_id=$1 AND user_id<>$2 AND left_at IS NULL ORDER BY joined_at ASC`,
		conversationID, excludeUserID)
	return ids, err
}

// CountActive counts open membership rows.
func (r *MembershipRepo) CountActive(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM conversation_members
        WHERE conversation_id=$1 AND left_at IS NULL`, conversationID)
	return count, err
}

// ToggleFlag flips one of the per-user preference flags and returns the new
// value.
func (r *MembershipRepo) ToggleFlag(ctx context.Context, conversationID, userID int64, flag MemberFlag) (bool, error) {
	switch flag {
	case FlagArchived, FlagMuted, FlagFavorited, FlagPinned:
	default:
		return false, errors.New("unknown member flag")
	}

	var value bool
	err := r.db.QueryRowxContext(ctx, `UPDATE conversation_members SET `+string(flag)+` = NOT `+string(flag)+`
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL RETURNING `+string(flag),
		conversationID, userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrMembershipNotFound
	}
	return value, err
}

// SetLastSeen moves the user's last-seen pointer.
func (r *MembershipRepo) SetLastSeen(ctx context.Context, conversationID, userID, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_members SET last_seen_message_id=$3
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`, conversationID, userID, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// LastSeen returns the user's last-seen pointer, nil when never set.
func (r *MembershipRepo) LastSeen(ctx context.Context, conversationID, userID int64) (*int64, error) {
	var id *int64
	err := r.db.GetContext(ctx, &id, `SELECT last_seen_message_id FROM conversation_members
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	return id, err
}

// PurgeLeft hard-deletes soft-closed rows so a rejoin starts clean.
func (r *MembershipRepo) PurgeLeft(ctx context.Context, conversationID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_members
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NOT NULL`, conversationID, userID)
	return err
}

// translateUniqueViolation maps the active-membership unique index conflict
// to the repository-level sentinel.
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateMembership
	}
	return err
}
