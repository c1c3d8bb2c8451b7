package consumer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Cache interface {
	SetLast(ctx context.Context, m pubsub.Message) error
}

type Broadcaster interface {
	Publish(ctx context.Context, m pubsub.Message) error
}

// Processor consome os eventos de aposta, atualiza o cache e faz fan-out via Redis.
// Entrega é at-least-once: clientes deduplicam pelo event_id do payload.
type Processor struct {
	Log         *zap.Logger
	Reader      Reader
	Cache       Cache
	Broadcaster Broadcaster

	OnConsumed func()
	OnError    func(stage string)
}

func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma mensagem; falhas de cache não bloqueiam o broadcast
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	msg, err := pubsub.FromEvent(m.Value)
	if err != nil || msg.WagerID == 0 {
		p.Log.Warn("invalid message", zap.String("topic", m.Topic), zap.Error(err))
		p.onError("decode")
		return
	}
	if err := p.Cache.SetLast(ctx, msg); err != nil {
		p.Log.Warn("redis set failed", zap.Error(err))
		p.onError("cache")
	}

	bctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Broadcaster.Publish(bctx, msg); err != nil {
		p.Log.Warn("broadcast publish failed", zap.Error(err))
		p.onError("broadcast")
	}
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
