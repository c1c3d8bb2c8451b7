package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
)

// RedisCache guarda o último evento de cada aposta
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

func key(wagerID int64) string { return "wager:last:" + strconv.FormatInt(wagerID, 10) }

func (r *RedisCache) SetLast(ctx context.Context, m pubsub.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(m.WagerID), b, r.TTL).Err()
}

// GetLast devolve o último evento da aposta; ok=false quando não está em cache
func (r *RedisCache) GetLast(ctx context.Context, wagerID int64) (pubsub.Message, bool, error) {
	b, err := r.Client.Get(ctx, key(wagerID)).Bytes()
	if err == redis.Nil {
		return pubsub.Message{}, false, nil
	}
	if err != nil {
		return pubsub.Message{}, false, err
	}
	var m pubsub.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return pubsub.Message{}, false, err
	}
	return m, true, nil
}
