package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
)

// Tx estende a transação do caixa com as apostas e o outbox.
// Ordem de locks: aposta, caixa, carteira.
type Tx interface {
	house.Tx

	// InsertWager atribui o próximo id monotônico e grava a aposta.
	// Devolve ErrDuplicateHandle se o handle já estiver vinculado.
	InsertWager(ctx context.Context, w *Wager) (int64, error)
	LockWager(ctx context.Context, id int64) (*Wager, error)
	LockWagerByHandle(ctx context.Context, handle string) (*Wager, error)
	UpdateWager(ctx context.Context, w *Wager) error
	AppendEvent(ctx context.Context, e Event) error
}

// Store é a fonte de verdade durável das apostas, do caixa e do outbox.
// WithinTx aplica fn atomicamente: qualquer erro desfaz tudo.
type Store interface {
	house.Store

	WithinTx(ctx context.Context, fn func(Tx) error) error
	Wager(ctx context.Context, id int64) (Wager, error)
	WagersByOwner(ctx context.Context, owner string) ([]Wager, error)
	UnpublishedEvents(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Event é uma linha do outbox: gravada na mesma transação da mudança de
// estado e publicada depois do commit.
type Event struct {
	ID        uuid.UUID
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Publisher entrega eventos ao barramento (Kafka em produção)
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}
