package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/missastane/chat-engine/internal/models"
)

// StatusRepository tracks per-recipient delivery state. Transitions are
// forward-only: sent to delivered to read, each guarded in SQL so concurrent
// acks collapse to one winner and repeats are no-ops.
type StatusRepository interface {
	Get(ctx context.Context, messageID, userID int64) (models.DeliveryStatus, error)
	MarkDelivered(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error)
	MarkRead(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error)
	DeleteForUser(ctx context.Context, messageID, userID int64) error
	FirstUnread(ctx context.Context, userID int64, messageIDs []int64) (*int64, error)
	UndeliveredCount(ctx context.Context, messageID int64) (int, error)
}

// StatusRepo is a sqlx-backed repository.
type StatusRepo struct {
	db *sqlx.DB
}

// NewStatusRepo constructs StatusRepo.
func NewStatusRepo(db *sqlx.DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// Get fetches one recipient's status row.
func (r *StatusRepo) Get(ctx context.Context, messageID, userID int64) (models.DeliveryStatus, error) {
	var s models.DeliveryStatus
	err := r.db.GetContext(ctx, &s, `SELECT message_id, user_id, status, delivered_at, read_at
        FROM message_statuses WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeliveryStatus{}, ErrStatusNotFound
	}
	return s, err
}

// MarkDelivered advances the given messages from sent to delivered for one
// recipient and returns the ids that actually transitioned. Rows already
// delivered or read are untouched.
func (r *StatusRepo) MarkDelivered(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var changed []int64
	err := r.db.SelectContext(ctx, &changed, `UPDATE message_statuses
        SET status=$1, delivered_at=NOW()
        WHERE user_id=$2 AND message_id = ANY($3) AND status=$4
        RETURNING message_id`,
		models.StateDelivered, userID, pq.Array(messageIDs), models.StateSent)
	return changed, err
}

// MarkRead advances delivered messages to read for one recipient and returns
// the ids that transitioned. A read ack for a message still in sent state is
// ignored, not promoted.
func (r *StatusRepo) MarkRead(ctx context.Context, userID int64, messageIDs []int64) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var changed []int64
	err := r.db.SelectContext(ctx, &changed, `UPDATE message_statuses
        SET status=$1, read_at=NOW()
        WHERE user_id=$2 AND message_id = ANY($3) AND status=$4
        RETURNING message_id`,
		models.StateRead, userID, pq.Array(messageIDs), models.StateDelivered)
	return changed, err
}

// DeleteForUser drops one recipient's status row, hiding the message from
// that user only.
func (r *StatusRepo) DeleteForUser(ctx context.Context, messageID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_statuses WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// FirstUnread returns the lowest message id among the given ones that sits at
// delivered for the recipient, or nil when everything is read.
func (r *StatusRepo) FirstUnread(ctx context.Context, userID int64, messageIDs []int64) (*int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var first *int64
	err := r.db.GetContext(ctx, &first, `SELECT MIN(message_id) FROM message_statuses
        WHERE user_id=$1 AND message_id = ANY($2) AND status=$3`,
		userID, pq.Array(messageIDs), models.StateDelivered)
	if err != nil {
		return nil, err
	}
	return first, nil
}

// UndeliveredCount counts recipients who have not read the message yet. Zero
// means every copy reached read state, which locks the message against edits.
func (r *StatusRepo) UndeliveredCount(ctx context.Context, messageID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM message_statuses
        WHERE message_id=$1 AND status IN ($2, $3)`,
		messageID, models.StateSent, models.StateDelivered)
	return count, err
}
