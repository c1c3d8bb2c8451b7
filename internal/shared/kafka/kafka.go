package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

func brokerList(brokers string) []string {
	return strings.Split(brokers, ",")
}

// NewWriter cria um writer para um tópico fixo (DLQ)
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokerList(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewMultiTopicWriter cria um writer sem tópico fixo; cada mensagem informa o seu.
// Balancer por hash da chave mantém os eventos de uma aposta na mesma partição.
func NewMultiTopicWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokerList(brokers)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewReader consome um tópico com commit explícito (CommitMessages):
// o offset só avança depois que o consumidor terminou a mensagem.
func NewReader(brokers string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList(brokers),
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
}

// NewGroupReader consome vários tópicos no mesmo consumer group, com commit
// automático a cada segundo (ReadMessage)
func NewGroupReader(brokers string, topics []string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokerList(brokers),
		GroupTopics:    topics,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}
