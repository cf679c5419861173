package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventStream keeps a capped backlog of session events per room so a late
// reader can catch up before following the pub/sub channel.
type EventStream struct {
	rdb    *redis.Client
	maxLen int64
}

func NewEventStream(rdb *redis.Client, maxLen int64) *EventStream {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &EventStream{rdb: rdb, maxLen: maxLen}
}

func (s *EventStream) Append(ctx context.Context, roomID string, payload []byte) (string, error) {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(roomID),
		MaxLen: s.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Result()
}

// Recent returns up to count payloads, oldest first.
func (s *EventStream) Recent(ctx context.Context, roomID string, count int64) ([][]byte, error) {
	msgs, err := s.rdb.XRevRangeN(ctx, streamKey(roomID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis - recent events: %w", err)
	}
	out := make([][]byte, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		out = append(out, []byte(raw))
	}
	return out, nil
}

func (s *EventStream) Delete(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, streamKey(roomID)).Err()
}
