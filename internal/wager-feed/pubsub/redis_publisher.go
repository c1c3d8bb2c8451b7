package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/events"
)

// DefaultChannel é o canal Redis Pub/Sub de fan-out para os hubs WebSocket
const DefaultChannel = "wager_events_broadcast"

// Message é o envelope repassado aos clientes WebSocket
type Message struct {
	Owner   string          `json:"owner"`
	WagerID int64           `json:"wagerId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FromEvent monta o envelope a partir do payload bruto de um evento de aposta
func FromEvent(raw []byte) (Message, error) {
	var h events.Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Message{}, err
	}
	return Message{Owner: h.Owner, WagerID: h.WagerID, Type: h.Type, Payload: json.RawMessage(raw)}, nil
}

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Channel() string { return b.channel }

func (b *RedisBroadcaster) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
