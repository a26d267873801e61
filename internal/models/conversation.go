package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PrivacyType controls how users may enter a conversation.
type PrivacyType int16

const (
	PrivacyPrivate  PrivacyType = 0
	PrivacyOpen     PrivacyType = 1
	PrivacyApproval PrivacyType = 2
)

// Conversation is the container both direct chats and groups hang off.
type Conversation struct {
	ID          int64       `db:"id" json:"id"`
	Hash        *string     `db:"conversation_hash" json:"conversation_hash,omitempty"`
	IsGroup     bool        `db:"is_group" json:"is_group"`
	PrivacyType PrivacyType `db:"privacy_type" json:"privacy_type"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// MemberRole is a tri-state: direct conversations carry RoleNone,
// group members are RoleMember or RoleAdmin. Group ownership is tracked
// on the groups row, not here.
type MemberRole int16

const (
	RoleNone   MemberRole = 0
	RoleAdmin  MemberRole = 1
	RoleMember MemberRole = 2
)

// Membership is one user's row in a conversation. The row is soft-closed
// (LeftAt set) when the user leaves and persists for history; at most one
// row per (conversation, user) may have LeftAt NULL.
type Membership struct {
	ID                int64      `db:"id" json:"id"`
	ConversationID    int64      `db:"conversation_id" json:"conversation_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	Role              MemberRole `db:"role" json:"role"`
	Archived          bool       `db:"archived" json:"archived"`
	Muted             bool       `db:"muted" json:"muted"`
	Favorited         bool       `db:"favorited" json:"favorited"`
	Pinned            bool       `db:"pinned" json:"pinned"`
	LastSeenMessageID *int64     `db:"last_seen_message_id" json:"last_seen_message_id,omitempty"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`
}

// Active reports whether the membership row is open.
func (m Membership) Active() bool {
	return m.LeftAt == nil
}

// ConversationHash derives the deterministic digest used to detect
// duplicate conversations between the same participant set.
func ConversationHash(userIDs []int64) string {
	ids := make([]int64, len(userIDs))
	copy(ids, userIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
