package roles

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDirectory answers role lookups from the platform's shared role cache.
// The account service maintains chat:role:elevated:<id> marks for system and
// moderator accounts; absence of the key means a regular user.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory wraps the given Redis client.
func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// IsElevated reports whether the user holds an elevated platform role.
func (d *RedisDirectory) IsElevated(ctx context.Context, userID int64) (bool, error) {
	n, err := d.client.Exists(ctx, fmt.Sprintf("chat:role:elevated:%d", userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
