package models

import "time"

// Group carries the group-only attributes of a group conversation.
// OwnerID is the single designated owner; it moves on leave/transfer.
type Group struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	Name           string    `db:"name" json:"name"`
	OwnerID        int64     `db:"owner_id" json:"owner_id"`
	AvatarPath     *string   `db:"avatar_path" json:"avatar_path,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// JoinRequestStatus: pending requests resolve to approved or rejected, both
// terminal.
type JoinRequestStatus int16

const (
	JoinApproved JoinRequestStatus = 1
	JoinRejected JoinRequestStatus = 2
	JoinPending  JoinRequestStatus = 3
)

// JoinRequest is a user's request to enter a group. At most one pending
// request per (conversation, user).
type JoinRequest struct {
	ID             int64             `db:"id" json:"id"`
	ConversationID int64             `db:"conversation_id" json:"conversation_id"`
	UserID         int64             `db:"user_id" json:"user_id"`
	Status         JoinRequestStatus `db:"status" json:"status"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	RespondedAt    *time.Time        `db:"responded_at" json:"responded_at,omitempty"`
}
