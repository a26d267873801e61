package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineTTL = 60 * time.Second
	typingTTL = 6 * time.Second
)

// Tracker keeps short-lived presence and typing marks in Redis. Marks are
// TTL keys: a crashed connection goes stale on its own instead of leaking a
// permanent online state.
type Tracker struct {
	client *redis.Client
}

// NewTracker wraps the given Redis client.
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

// MarkOnline sets the user's presence mark. Called on websocket connect and
// refreshed while the connection lives.
func (t *Tracker) MarkOnline(ctx context.Context, userID int64) error {
	return t.client.Set(ctx, onlineKey(userID), 1, onlineTTL).Err()
}

// MarkOffline clears the presence mark on disconnect.
func (t *Tracker) MarkOffline(ctx context.Context, userID int64) error {
	return t.client.Del(ctx, onlineKey(userID)).Err()
}

// IsOnline reports whether the user currently holds a presence mark.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, onlineKey(userID)).Result()
	return n > 0, err
}

// MarkTyping refreshes the user's typing mark in a conversation.
func (t *Tracker) MarkTyping(ctx context.Context, conversationID, userID int64) error {
	return t.client.Set(ctx, typingKey(conversationID, userID), 1, typingTTL).Err()
}

// TypingUsers lists users with a live typing mark in the conversation.
func (t *Tracker) TypingUsers(ctx context.Context, conversationID int64) ([]int64, error) {
	pattern := fmt.Sprintf("chat:typing:%d:*", conversationID)
	var users []int64
	iter := t.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		var convID, userID int64
		if _, err := fmt.Sscanf(iter.Val(), "chat:typing:%d:%d", &convID, &userID); err == nil {
			users = append(users, userID)
		}
	}
	return users, iter.Err()
}

func onlineKey(userID int64) string {
	return fmt.Sprintf("chat:online:%d", userID)
}

func typingKey(conversationID, userID int64) string {
	return fmt.Sprintf("chat:typing:%d:%d", conversationID, userID)
}
