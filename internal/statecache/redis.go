package statecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Cache mirrors each user's current room into redis so a restarted server
// can reconcile sessions against rooms rebuilt from the database.
type Cache struct {
	rdb *redis.Client
}

// New connects a cache to the given redis address.
func New(addr string) *Cache {
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func userKey(userID int32) string {
	return fmt.Sprintf("beatlink:user:%d:room", userID)
}

// SetUserRoom records the room a user is joined to.
func (c *Cache) SetUserRoom(ctx context.Context, userID int32, roomID int64) error {
	if err := c.rdb.Set(ctx, userKey(userID), roomID, 0).Err(); err != nil {
		return fmt.Errorf("set user room: %w", err)
	}
	return nil
}

// ClearUserRoom forgets the user's room binding.
func (c *Cache) ClearUserRoom(ctx context.Context, userID int32) error {
	if err := c.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear user room: %w", err)
	}
	return nil
}

// GetUserRoom returns the recorded room for a user, with found=false when no
// binding exists.
func (c *Cache) GetUserRoom(ctx context.Context, userID int32) (roomID int64, found bool, err error) {
	val, err := c.rdb.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get user room: %w", err)
	}

	roomID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode user room: %w", err)
	}
	return roomID, true, nil
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
