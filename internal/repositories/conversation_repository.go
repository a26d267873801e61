package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/missastane/chat-engine/internal/models"
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetDirect(ctx context.Context, userIDs []int64) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	GetByHash(ctx context.Context, hash string) (models.Conversation, error)
	SetPrivacyType(ctx context.Context, conversationID int64, privacy models.PrivacyType) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, conversation_hash, is_group, privacy_type, created_at`

// CreateOrGetDirect resolves the 1:1 conversation for the given participant
// pair, creating it together with its membership rows when absent. The
// returned bool reports whether a new conversation was created. Concurrent
// first contact is resolved by the unique conversation_hash: the losing
// insert falls through to the re-select.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, userIDs []int64) (models.Conversation, bool, error) {
	hash := models.ConversationHash(userIDs)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_hash=$1`, hash)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (conversation_hash, is_group, privacy_type)
        VALUES ($1, FALSE, $2)
        ON CONFLICT (conversation_hash) DO NOTHING
        RETURNING `+conversationColumns, hash, models.PrivacyPrivate).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race; the other writer owns the membership rows
		tx.Rollback()
		err = r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_hash=$1`, hash)
		return conv, false, err
	}
	if err != nil {
		return models.Conversation{}, false, err
	}

	now := time.Now()
	for _, id := range userIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, $4)`, conv.ID, id, models.RoleNone, now); err != nil {
			return models.Conversation{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// GetByHash fetches a conversation by its participant hash.
func (r *ConversationRepo) GetByHash(ctx context.Context, hash string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_hash=$1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// SetPrivacyType updates the only mutable conversation attribute.
func (r *ConversationRepo) SetPrivacyType(ctx context.Context, conversationID int64, privacy models.PrivacyType) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET privacy_type=$1 WHERE id=$2`, privacy, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
