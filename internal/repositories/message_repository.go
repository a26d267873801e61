package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/missastane/chat-engine/internal/models"
)

// MediaInput describes an attachment already persisted by the file store.
type MediaInput struct {
	FileName string
	FilePath string
	FileType string
	FileSize int64
	MimeType string
}

// CreateMessageParams is the write set for one message: the row itself, its
// attachments, the frozen recipient snapshot, and memberships to ensure
// first (cross-context private replies lazily attach both parties).
type CreateMessageParams struct {
	ConversationID       int64
	SenderID             int64
	Content              *string
	ParentID             *int64
	ForwardedFromID      *int64
	PrivateReplySourceID *int64
	Media                []MediaInput
	Recipients           []int64
	EnsureMemberIDs      []int64
}

// ForwardTarget is one destination conversation of a forward.
type ForwardTarget struct {
	ConversationID int64
	Recipients     []int64
}

// MessageRepository defines interactions with the append-only message log.
type MessageRepository interface {
	CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error)
	ForwardMessage(ctx context.Context, source models.Message, senderID int64, targets []ForwardTarget) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)
	SearchMessages(ctx context.Context, conversationID int64, query string) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string) error
	DeleteMessage(ctx context.Context, messageID int64) ([]string, error)
	MediaByMessage(ctx context.Context, messageID int64) ([]models.Media, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, message_type, parent_id, forwarded_from_id, private_reply_source_id, sent_at, deleted_at`

// CreateMessage persists the message, its media and one status row per
// recipient in a single transaction. Partial application (message without
// statuses) is a correctness bug, so any failure rolls back everything.
func (r *MessageRepo) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	for _, id := range p.EnsureMemberIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
            SELECT $1, $2, $3, $4
            WHERE NOT EXISTS (SELECT 1 FROM conversation_members
                WHERE conversation_id=$1 AND user_id=$2 AND left_at IS NULL)`,
			p.ConversationID, id, models.RoleNone, now); err != nil {
			return models.Message{}, err
		}
	}

	var msg models.Message
	msgType := models.DeriveMessageType(p.Content, len(p.Media))
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages
        (conversation_id, sender_id, content, message_type, parent_id, forwarded_from_id, private_reply_source_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		p.ConversationID, p.SenderID, p.Content, msgType, p.ParentID, p.ForwardedFromID, p.PrivateReplySourceID).
		StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if msg.Media, err = insertMedia(ctx, tx, msg.ID, p.Media); err != nil {
		return models.Message{}, err
	}
	if err = insertStatuses(ctx, tx, msg.ID, p.Recipients); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ForwardMessage duplicates the source into every target conversation with a
// forwarded-from reference, cloning media rows (not files) and initializing
// statuses. All targets share one transaction: one invalid target aborts the
// whole forward.
func (r *MessageRepo) ForwardMessage(ctx context.Context, source models.Message, senderID int64, targets []ForwardTarget) ([]models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var sourceMedia []models.Media
	if err = sqlx.SelectContext(ctx, tx, &sourceMedia, `SELECT `+mediaColumns+` FROM message_media WHERE message_id=$1 ORDER BY id ASC`, source.ID); err != nil {
		return nil, err
	}

	clones := make([]MediaInput, 0, len(sourceMedia))
	for _, m := range sourceMedia {
		clones = append(clones, MediaInput{
			FileName: m.FileName,
			FilePath: m.FilePath,
			FileType: m.FileType,
			FileSize: m.FileSize,
			MimeType: m.MimeType,
		})
	}

	result := make([]models.Message, 0, len(targets))
	for _, target := range targets {
		var msg models.Message
		err = tx.QueryRowxContext(ctx, `INSERT INTO messages
            (conversation_id, sender_id, content, message_type, forwarded_from_id)
            VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
			target.ConversationID, senderID, source.Content, source.Type, source.ID).
			StructScan(&msg)
		if err != nil {
			return nil, err
		}
		if msg.Media, err = insertMedia(ctx, tx, msg.ID, clones); err != nil {
			return nil, err
		}
		if err = insertStatuses(ctx, tx, msg.ID, target.Recipients); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMessage retrieves a single live message with its media.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1 AND deleted_at IS NULL`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msg.Media, err = r.MediaByMessage(ctx, messageID)
	return msg, err
}

// ListMessages returns a newest-first page of live messages with media
// attached.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 AND deleted_at IS NULL
        ORDER BY sent_at DESC, id DESC LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.attachMedia(ctx, msgs)
}

// SearchMessages finds live text messages matching the query.
func (r *MessageRepo) SearchMessages(ctx context.Context, conversationID int64, query string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 AND deleted_at IS NULL AND content IS NOT NULL AND content ILIKE '%' || $2 || '%'
        ORDER BY sent_at DESC, id DESC`, conversationID, query)
	if err != nil {
		return nil, err
	}
	return r.attachMedia(ctx, msgs)
}

// UpdateContent replaces the message body. Authorization and the edit-lock
// boundary are enforced by the caller.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$2 WHERE id=$1 AND deleted_at IS NULL`, messageID, content)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage removes the message for everyone: status rows and media rows
// go, the message row is tombstoned. It returns the file paths whose last
// media reference was just removed so the caller can delete the stored files
// after commit; forward-duplicated paths survive.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int64) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var media []models.Media
	if err = sqlx.SelectContext(ctx, tx, &media, `SELECT `+mediaColumns+` FROM message_media WHERE message_id=$1`, messageID); err != nil {
		return nil, err
	}

	var orphaned []string
	for _, m := range media {
		var refs int
		if err = sqlx.GetContext(ctx, tx, &refs, `SELECT COUNT(*) FROM message_media WHERE file_path=$1`, m.FilePath); err != nil {
			return nil, err
		}
		if refs == 1 {
			orphaned = append(orphaned, m.FilePath)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM message_statuses WHERE message_id=$1`, messageID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM message_media WHERE message_id=$1`, messageID); err != nil {
		return nil, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE messages SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`, messageID, time.Now())
	if err != nil {
		return nil, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		err = ErrMessageNotFound
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return orphaned, nil
}

// MediaByMessage lists a message's attachments.
func (r *MessageRepo) MediaByMessage(ctx context.Context, messageID int64) ([]models.Media, error) {
	var media []models.Media
	err := r.db.SelectContext(ctx, &media, `SELECT `+mediaColumns+` FROM message_media WHERE message_id=$1 ORDER BY id ASC`, messageID)
	return media, err
}

func (r *MessageRepo) attachMedia(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	mediaHolders := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.Type != models.MessageText {
			mediaHolders = append(mediaHolders, m.ID)
		}
	}
	if len(mediaHolders) == 0 {
		return msgs, nil
	}

	query, args, err := sqlx.In(`SELECT `+mediaColumns+` FROM message_media WHERE message_id IN (?) ORDER BY id ASC`, mediaHolders)
	if err != nil {
		return nil, err
	}
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byMessage := make(map[int64][]models.Media, len(mediaHolders))
	for _, m := range media {
		byMessage[m.MessageID] = append(byMessage[m.MessageID], m)
	}
	for i := range msgs {
		msgs[i].Media = byMessage[msgs[i].ID]
	}
	return msgs, nil
}

const mediaColumns = `id, message_id, file_name, file_path, file_type, file_size, mime_type, created_at`

func insertMedia(ctx context.Context, tx *sqlx.Tx, messageID int64, inputs []MediaInput) ([]models.Media, error) {
	media := make([]models.Media, 0, len(inputs))
	for _, in := range inputs {
		var m models.Media
		err := tx.QueryRowxContext(ctx, `INSERT INTO message_media (message_id, file_name, file_path, file_type, file_size, mime_type)
            VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+mediaColumns,
			messageID, in.FileName, in.FilePath, in.FileType, in.FileSize, in.MimeType).StructScan(&m)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, nil
}

func insertStatuses(ctx context.Context, tx *sqlx.Tx, messageID int64, recipients []int64) error {
	for _, userID := range recipients {
		if _, err := tx.ExecContext(ctx, `INSERT INTO message_statuses (message_id, user_id, status)
            VALUES ($1, $2, $3)`, messageID, userID, models.StateSent); err != nil {
			return err
		}
	}
	return nil
}
