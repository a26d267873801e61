package models

import "time"

// MessageType is derived from the presence of content and attachments.
type MessageType int16

const (
	MessageText  MessageType = 0
	MessageMixed MessageType = 1
	MessageMedia MessageType = 2
)

// DeriveMessageType recomputes the type from what the message carries.
func DeriveMessageType(content *string, mediaCount int) MessageType {
	hasContent := content != nil && *content != ""
	switch {
	case hasContent && mediaCount > 0:
		return MessageMixed
	case mediaCount > 0:
		return MessageMedia
	default:
		return MessageText
	}
}

// Message is a single entry in a conversation's append-only log.
// Content is nullable: a message may be media only.
type Message struct {
	ID                   int64       `db:"id" json:"id"`
	ConversationID       int64       `db:"conversation_id" json:"conversation_id"`
	SenderID             int64       `db:"sender_id" json:"sender_id"`
	Content              *string     `db:"content" json:"content,omitempty"`
	Type                 MessageType `db:"message_type" json:"message_type"`
	ParentID             *int64      `db:"parent_id" json:"parent_id,omitempty"`
	ForwardedFromID      *int64      `db:"forwarded_from_id" json:"forwarded_from_id,omitempty"`
	PrivateReplySourceID *int64      `db:"private_reply_source_id" json:"private_reply_source_id,omitempty"`
	SentAt               time.Time   `db:"sent_at" json:"sent_at"`
	DeletedAt            *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`

	Media []Media `db:"-" json:"media,omitempty"`
}

// Media is an attachment record. FilePath is an opaque handle owned by the
// file store; forwarded copies share the path, so deletion must count
// references before removing the underlying file.
type Media struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FilePath  string    `db:"file_path" json:"file_path"`
	FileType  string    `db:"file_type" json:"file_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatEvent is broadcast through websockets and mirrored on the event bus.
type ChatEvent struct {
	Type           string   `json:"type"`
	ConversationID int64    `json:"conversation_id"`
	Message        *Message `json:"message,omitempty"`
	MessageID      int64    `json:"message_id,omitempty"`
	UserID         int64    `json:"user_id,omitempty"`
	Emoji          string   `json:"emoji,omitempty"`
}
