package producer

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

// HeaderEventID é o header Kafka com o id do evento (dedupe nos consumidores)
const HeaderEventID = "event_id"

// MessageWriter é o subconjunto de *kafka.Writer usado pelo publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher entrega os eventos do outbox ao Kafka.
// Cada evento carrega o próprio tópico; a chave é o id da aposta.
type KafkaPublisher struct {
	Writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs []settlement.Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(evs))
	for i, e := range evs {
		msgs[i] = kafka.Message{
			Topic:   e.Topic,
			Key:     []byte(e.Key),
			Value:   e.Payload,
			Time:    e.CreatedAt,
			Headers: []kafka.Header{{Key: HeaderEventID, Value: []byte(e.ID.String())}},
		}
	}
	return p.Writer.WriteMessages(ctx, msgs...)
}
