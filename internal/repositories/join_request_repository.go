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

// JoinRequestRepository persists group join requests. At most one pending
// request per user and conversation exists, enforced by a partial unique
// index so racing submissions collapse to one row.
type JoinRequestRepository interface {
	Create(ctx context.Context, conversationID, userID int64, attachMembership bool) (models.JoinRequest, error)
	GetByID(ctx context.Context, requestID int64) (models.JoinRequest, error)
	PendingByConversation(ctx context.Context, conversationID int64) ([]models.JoinRequest, error)
	Respond(ctx context.Context, requestID int64, status models.JoinRequestStatus, attachMembership bool) (models.JoinRequest, error)
}

// JoinRequestRepo is a sqlx-backed repository.
type JoinRequestRepo struct {
	db *sqlx.DB
}

// NewJoinRequestRepo constructs JoinRequestRepo.
func NewJoinRequestRepo(db *sqlx.DB) *JoinRequestRepo {
	return &JoinRequestRepo{db: db}
}

const joinRequestColumns = `id, conversation_id, user_id, status, created_at, responded_at`

// Create records a join request. For open groups attachMembership is true
// and the request is stored already approved with the membership created in
// the same transaction; otherwise it is stored pending. Soft-closed
// membership leftovers for the user are purged first so a revived join gets
// a fresh joined_at.
func (r *JoinRequestRepo) Create(ctx context.Context, conversationID, userID int64, attachMembership bool) (models.JoinRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.JoinRequest{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM conversation_members
        WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NOT NULL`,
		conversationID, userID); err != nil {
		return models.JoinRequest{}, err
	}

	status := models.JoinPending
	var respondedAt *time.Time
	if attachMembership {
		status = models.JoinApproved
		now := time.Now()
		respondedAt = &now
	}

	var req models.JoinRequest
	err = tx.QueryRowxContext(ctx, `INSERT INTO join_requests (conversation_id, user_id, status, responded_at)
        VALUES ($1, $2, $3, $4) RETURNING `+joinRequestColumns,
		conversationID, userID, status, respondedAt).StructScan(&req)
	if err != nil {
		err = translateJoinRequestConflict(err)
		return models.JoinRequest{}, err
	}

	if attachMembership {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, $4)`, conversationID, userID, models.RoleMember, time.Now()); err != nil {
			err = translateUniqueViolation(err)
			return models.JoinRequest{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.JoinRequest{}, err
	}
	return req, nil
}

// GetByID fetches one request.
func (r *JoinRequestRepo) GetByID(ctx context.Context, requestID int64) (models.JoinRequest, error) {
	var req models.JoinRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+joinRequestColumns+` FROM join_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JoinRequest{}, ErrRequestNotFound
	}
	return req, err
}

// PendingByConversation lists pending requests oldest first.
func (r *JoinRequestRepo) PendingByConversation(ctx context.Context, conversationID int64) ([]models.JoinRequest, error) {
	var reqs []models.JoinRequest
	err := r.db.SelectContext(ctx, &reqs, `SELECT `+joinRequestColumns+` FROM join_requests
        WHERE conversation_id=$1 AND status=$2 ORDER BY created_at ASC, id ASC`,
		conversationID, models.JoinPending)
	return reqs, err
}

// Respond settles a pending request. Approval creates the membership in the
// same transaction; a request that is no longer pending yields
// ErrRequestNotFound so double responses surface instead of re-approving.
func (r *JoinRequestRepo) Respond(ctx context.Context, requestID int64, status models.JoinRequestStatus, attachMembership bool) (models.JoinRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.JoinRequest{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req models.JoinRequest
	err = tx.QueryRowxContext(ctx, `UPDATE join_requests SET status=$2, responded_at=$3
        WHERE id=$1 AND status=$4 RETURNING `+joinRequestColumns,
		requestID, status, time.Now(), models.JoinPending).StructScan(&req)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrRequestNotFound
		return models.JoinRequest{}, err
	}
	if err != nil {
		return models.JoinRequest{}, err
	}

	if attachMembership {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, $4)`, req.ConversationID, req.UserID, models.RoleMember, time.Now()); err != nil {
			err = translateUniqueViolation(err)
			return models.JoinRequest{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.JoinRequest{}, err
	}
	return req, nil
}

func translateJoinRequestConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrRequestAlreadyPending
	}
	return err
}
