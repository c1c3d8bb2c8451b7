package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay republica eventos do outbox que não foram confirmados após o commit
// (queda do broker, processo morto entre commit e publish). Entrega é
// at-least-once; consumidores deduplicam pelo event_id.
type Relay struct {
	store    Store
	pub      Publisher
	log      *zap.Logger
	clock    quartz.Clock
	interval time.Duration
	batch    int
}

func NewRelay(store Store, pub Publisher, log *zap.Logger, clock quartz.Clock, interval time.Duration) *Relay {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{store: store, pub: pub, log: log, clock: clock, interval: interval, batch: 100}
}

// Flush publica um lote de eventos pendentes e devolve quantos foram marcados
func (r *Relay) Flush(ctx context.Context) (int, error) {
	evs, err := r.store.UnpublishedEvents(ctx, r.batch)
	if err != nil || len(evs) == 0 {
		return 0, err
	}
	if err := r.pub.Publish(ctx, evs); err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, len(evs))
	for i, e := range evs {
		ids[i] = e.ID
	}
	if err := r.store.MarkPublished(ctx, ids); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// Run executa Flush a cada intervalo até ctx ser cancelado
func (r *Relay) Run(ctx context.Context) error {
	w := r.clock.TickerFunc(ctx, r.interval, func() error {
		n, err := r.Flush(ctx)
		if err != nil {
			r.log.Warn("outbox relay", zap.Error(err))
		} else if n > 0 {
			r.log.Info("outbox relay republished", zap.Int("events", n))
		}
		return nil
	}, "relay")
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
