package creditfeed

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const tickBufferKey = "workout_tick_buffer"

// TickBuffer is the redis zset holding in-flight workout ticks, scored by
// emission time so the flusher can drain everything older than the settle
// delay in one range query.
type TickBuffer struct {
	client *redis.Client
	key    string
}

func NewTickBuffer(cache *redis.Client) TickBuffer {
	return TickBuffer{
		key:    tickBufferKey,
		client: cache,
	}
}

func (b *TickBuffer) Add(ctx context.Context, score float64, members ...string) error {
	zArgs := make([]redis.Z, 0, len(members))
	for _, m := range members {
		zArgs = append(zArgs, redis.Z{Member: m, Score: score})
	}
	cmd := b.client.ZAddArgs(ctx, b.key, redis.ZAddArgs{
		NX:      true,
		Members: zArgs,
	})
	return cmd.Err()
}

func (b *TickBuffer) GetValuesByScore(ctx context.Context, min, max int64, limit int64) ([]string, error) {
	data := b.client.ZRangeByScore(ctx, b.key, &redis.ZRangeBy{
		Min:   fmt.Sprintf("%d", min),
		Max:   fmt.Sprintf("%d", max),
		Count: limit,
	})
	if data.Err() != nil {
		return nil, data.Err()
	}
	return data.Val(), nil
}

// Remove drops exactly the given members. The flusher uses this instead of a
// score-range trim so ticks that were never fetched (beyond the drain limit)
// stay buffered for the next pass.
func (b *TickBuffer) Remove(ctx context.Context, members ...string) (int64, error) {
	args := make([]interface{}, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	cmd := b.client.ZRem(ctx, b.key, args...)
	return cmd.Val(), cmd.Err()
}

func (b *TickBuffer) Count(ctx context.Context) (int64, error) {
	cmd := b.client.ZCount(ctx, b.key, "-inf", "+inf")
	return cmd.Val(), cmd.Err()
}
