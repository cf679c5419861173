package redis

import (
	"context"
	"livon-client/internal/core/contracts"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore mirrors the latest presence snapshot of a room into a
// sorted set scored by arrival time.
type RedisPresenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ contracts.PresenceStore = (*RedisPresenceStore)(nil)

func NewRedisPresenceStore(rdb *redis.Client, ttl time.Duration) *RedisPresenceStore {
	return &RedisPresenceStore{rdb: rdb, ttl: ttl}
}

// ReplaceOnline swaps the whole set atomically; a snapshot never merges.
func (p *RedisPresenceStore) ReplaceOnline(ctx context.Context, roomID string, users []string) error {
	key := presenceKey(roomID)
	now := float64(time.Now().Unix())
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(users) == 0 {
			return nil
		}
		members := make([]redis.Z, 0, len(users))
		for _, u := range users {
			members = append(members, redis.Z{Score: now, Member: u})
		}
		pipe.ZAdd(ctx, key, members...)
		// so an abandoned room does not leak
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	return err
}

func (p *RedisPresenceStore) GetOnline(ctx context.Context, roomID string) ([]string, error) {
	return p.rdb.ZRange(ctx, presenceKey(roomID), 0, -1).Result()
}

func (p *RedisPresenceStore) ClearRoom(ctx context.Context, roomID string) error {
	return p.rdb.Del(ctx, presenceKey(roomID)).Err()
}
