package redis

import (
	"context"
	"fmt"
	"livon-client/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings; an unreachable server is an error.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis - parse url: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis - ping: %w", err)
	}
	return rdb, nil
}

func presenceKey(roomID string) string { return "presence:" + roomID }

func streamKey(roomID string) string { return "chat:stream:" + roomID }

// ChannelFor is the pub/sub channel carrying a room's session events.
func ChannelFor(roomID string) string { return "chat:events:" + roomID }
