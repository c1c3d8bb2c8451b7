package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub e repassa cada evento ao
// Hub local. Toda réplica do wager-feed assina o mesmo canal.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				Forward(hub, []byte(msg.Payload), log)
			}
		}
	}()
}

// Forward decodifica uma mensagem do canal e faz o broadcast
func Forward(hub *Hub, payload []byte, log *zap.Logger) {
	var m pubsub.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.Error(err))
		return
	}
	hub.Broadcast(m)
}
