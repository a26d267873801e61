package models

import "time"

// Reaction is one user's emoji on a message, unique per (message, user, emoji).
type Reaction struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReactionGroup is the per-emoji aggregate returned when listing reactions.
type ReactionGroup struct {
	Emoji   string  `db:"emoji" json:"emoji"`
	Count   int     `db:"count" json:"count"`
	UserIDs []int64 `db:"-" json:"user_ids"`
}

// PinnedMessage pins a message in a conversation. Public pins are visible to
// everyone and a conversation holds at most one at a time; private pins are
// per user.
type PinnedMessage struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	MessageID      int64     `db:"message_id" json:"message_id"`
	IsPublic       bool      `db:"is_public" json:"is_public"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// FavoriteMessage bookmarks a message for a user.
type FavoriteMessage struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BlockKind discriminates what a block points at.
type BlockKind int16

const (
	BlockKindUser         BlockKind = 1
	BlockKindConversation BlockKind = 2
)

// BlockTarget is a tagged variant: a block applies to either a user or a
// whole conversation. Keeping the tag explicit gives exhaustive switches at
// every block check.
type BlockTarget struct {
	Kind BlockKind `db:"target_kind" json:"target_kind"`
	ID   int64     `db:"target_id" json:"target_id"`
}

// BlockUser targets a user.
func BlockUser(id int64) BlockTarget {
	return BlockTarget{Kind: BlockKindUser, ID: id}
}

// BlockConversation targets a conversation.
func BlockConversation(id int64) BlockTarget {
	return BlockTarget{Kind: BlockKindConversation, ID: id}
}

// Block is one user's block of a target.
type Block struct {
	ID        int64 `db:"id" json:"id"`
	BlockerID int64 `db:"blocker_id" json:"blocker_id"`
	Target    BlockTarget
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
