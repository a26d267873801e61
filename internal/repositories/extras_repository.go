package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/missastane/chat-engine/internal/models"
)

// ExtrasRepository covers the per-message and per-user annotations that sit
// next to the core log: reactions, pins, favorites and block lists.
type ExtrasRepository interface {
	ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (added bool, err error)
	ListReactions(ctx context.Context, messageID int64) ([]models.ReactionGroup, error)
	TogglePin(ctx context.Context, conversationID, messageID, userID int64, isPublic bool) (pinned bool, err error)
	ListPins(ctx context.Context, conversationID, userID int64) ([]models.PinnedMessage, error)
	ToggleFavorite(ctx context.Context, messageID, userID int64) (favorited bool, err error)
	ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteMessage, error)
	Block(ctx context.Context, blockerID int64, target models.BlockTarget) error
	Unblock(ctx context.Context, blockerID int64, target models.BlockTarget) error
	IsBlocked(ctx context.Context, blockerID int64, target models.BlockTarget) (bool, error)
	AnyBlockBetween(ctx context.Context, userA, userB int64) (bool, error)
}

// ExtrasRepo is a sqlx-backed repository.
type ExtrasRepo struct {
	db *sqlx.DB
}

// NewExtrasRepo constructs ExtrasRepo.
func NewExtrasRepo(db *sqlx.DB) *ExtrasRepo {
	return &ExtrasRepo{db: db}
}

// ToggleReaction adds the emoji for the user, or removes it when the same
// reaction already exists. Reports whether the reaction is present after the
// call.
func (r *ExtrasRepo) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions
        WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji)
        VALUES ($1, $2, $3) ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListReactions aggregates reactions per emoji with the reacting users.
func (r *ExtrasRepo) ListReactions(ctx context.Context, messageID int64) ([]models.ReactionGroup, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT emoji, COUNT(*), ARRAY_AGG(user_id ORDER BY created_at ASC)
        FROM message_reactions WHERE message_id=$1
        GROUP BY emoji ORDER BY MIN(created_at) ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ReactionGroup
	for rows.Next() {
		var g models.ReactionGroup
		var userIDs pq.Int64Array
		if err := rows.Scan(&g.Emoji, &g.Count, &userIDs); err != nil {
			return nil, err
		}
		g.UserIDs = []int64(userIDs)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// TogglePin pins or unpins a message for the user. A public pin is
// conversation-wide and exclusive: pinning publicly replaces the previous
// public pin inside one transaction.
func (r *ExtrasRepo) TogglePin(ctx context.Context, conversationID, messageID, userID int64, isPublic bool) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `DELETE FROM pinned_messages
        WHERE conversation_id=$1 AND message_id=$2 AND user_id=$3 AND is_public=$4`,
		conversationID, messageID, userID, isPublic)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		err = tx.Commit()
		return false, err
	}

	if isPublic {
		if _, err = tx.ExecContext(ctx, `DELETE FROM pinned_messages
            WHERE conversation_id=$1 AND is_public`, conversationID); err != nil {
			return false, err
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO pinned_messages (conversation_id, message_id, user_id, is_public)
        VALUES ($1, $2, $3, $4)`, conversationID, messageID, userID, isPublic); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListPins returns the conversation's public pin plus the caller's private
// pins, newest first.
func (r *ExtrasRepo) ListPins(ctx context.Context, conversationID, userID int64) ([]models.PinnedMessage, error) {
	var pins []models.PinnedMessage
	err := r.db.SelectContext(ctx, &pins, `SELECT id, conversation_id, message_id, user_id, is_public, created_at
        FROM pinned_messages
        WHERE conversation_id=$1 AND (is_public OR user_id=$2)
        ORDER BY created_at DESC, id DESC`, conversationID, userID)
	return pins, err
}

// ToggleFavorite stars or unstars a message for the user.
func (r *ExtrasRepo) ToggleFavorite(ctx context.Context, messageID, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorite_messages WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO favorite_messages (message_id, user_id)
        VALUES ($1, $2) ON CONFLICT (user_id, message_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListFavorites returns the user's starred messages, newest star first.
func (r *ExtrasRepo) ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteMessage, error) {
	var favs []models.FavoriteMessage
	err := r.db.SelectContext(ctx, &favs, `SELECT id, message_id, user_id, created_at
        FROM favorite_messages WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	return favs, err
}

// Block records a block against a user or conversation. Re-blocking is a
// no-op.
func (r *ExtrasRepo) Block(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO blocks (blocker_id, target_kind, target_id)
        VALUES ($1, $2, $3) ON CONFLICT (blocker_id, target_kind, target_id) DO NOTHING`,
		blockerID, target.Kind, target.ID)
	return err
}

// Unblock removes a block; removing an absent block is a no-op.
func (r *ExtrasRepo) Unblock(ctx context.Context, blockerID int64, target models.BlockTarget) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks
        WHERE blocker_id=$1 AND target_kind=$2 AND target_id=$3`,
		blockerID, target.Kind, target.ID)
	return err
}

// IsBlocked reports whether blockerID has an active block on the target.
func (r *ExtrasRepo) IsBlocked(ctx context.Context, blockerID int64, target models.BlockTarget) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM blocks
        WHERE blocker_id=$1 AND target_kind=$2 AND target_id=$3)`,
		blockerID, target.Kind, target.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

// AnyBlockBetween reports whether either user blocks the other, which stops
// direct messaging in both directions.
func (r *ExtrasRepo) AnyBlockBetween(ctx context.Context, userA, userB int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM blocks
        WHERE target_kind=$3 AND ((blocker_id=$1 AND target_id=$2) OR (blocker_id=$2 AND target_id=$1)))`,
		userA, userB, models.BlockKindUser)
	return exists, err
}
