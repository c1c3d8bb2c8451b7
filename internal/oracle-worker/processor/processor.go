// Package processor é o driver do modo pull: para cada aposta aceita busca a
// revelação no oráculo e a submete ao wager-service.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/events"
)

// ErrAlreadyResolved indica que a aposta já saiu de PENDING (push, outro
// worker ou cancelamento). Não é falha: a mensagem é descartada.
var ErrAlreadyResolved = errors.New("wager already resolved")

// ErrRejected é uma rejeição definitiva do wager-service (4xx); vai para a DLQ sem retentar
var ErrRejected = errors.New("resolve rejected")

// Reader é o subconjunto de *kafka.Reader usado pelo processor
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer publica na DLQ
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Resolver submete a revelação para liquidação
type Resolver interface {
	Resolve(ctx context.Context, rev oracle.Revelation) error
}

// Retry controla as tentativas de busca da revelação e de submissão
type Retry struct {
	Attempts int
	Delay    time.Duration // dobra a cada tentativa
	MaxDelay time.Duration
}

func DefaultRetry() Retry {
	return Retry{Attempts: 6, Delay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Processor consome wager_placed e resolve cada aposta.
// Callbacks de métricas podem ser nil.
type Processor struct {
	Log      *zap.Logger
	Reader   Reader
	Revealer oracle.Revealer
	Resolver Resolver
	DLQ      Writer // nil desativa a DLQ
	Retry    Retry

	OnConsumed func()
	OnResolved func()
	OnSkipped  func()
	OnDLQ      func()
	OnError    func(stage string)
}

// Run processa mensagens até ctx ser cancelado. O offset só é confirmado
// depois que a mensagem foi resolvida, descartada ou enviada à DLQ.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.onError("read")
			if err := sleep(ctx, 500*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		// sem commit a mensagem não pode ser pulada: insiste até a DLQ aceitar
		for {
			err := p.Handle(ctx, m)
			if err == nil {
				break
			}
			p.Log.Error("message not handled", zap.ByteString("key", m.Key), zap.Error(err))
			if err := sleep(ctx, time.Second); err != nil {
				return err
			}
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.onError("commit")
		}
	}
}

// Handle processa uma mensagem. Devolve erro só quando nem a DLQ aceitou a
// mensagem; nesse caso o offset não deve ser confirmado.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.WagerPlaced
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.Handle == "" {
		p.Log.Warn("invalid wager_placed message", zap.Error(err))
		p.onError("decode")
		return p.deadLetter(ctx, m, "decode")
	}
	log := p.Log.With(zap.Int64("wager_id", ev.WagerID), zap.String("handle", ev.Handle))

	rev, err := p.fetch(ctx, ev.Handle)
	if err != nil {
		log.Warn("revelation not obtained", zap.Error(err))
		p.onError("fetch")
		return p.deadLetter(ctx, m, "fetch")
	}

	err = p.withRetry(ctx, func() error { return p.Resolver.Resolve(ctx, rev) })
	switch {
	case errors.Is(err, ErrAlreadyResolved):
		log.Info("wager already resolved, skipping")
		if p.OnSkipped != nil {
			p.OnSkipped()
		}
		return nil
	case err != nil:
		log.Warn("resolve failed", zap.Error(err))
		p.onError("resolve")
		return p.deadLetter(ctx, m, "resolve")
	}
	log.Info("wager resolved")
	if p.OnResolved != nil {
		p.OnResolved()
	}
	return nil
}

// fetch espera a revelação ficar disponível; handle desconhecido não é retentado
func (p *Processor) fetch(ctx context.Context, handle string) (oracle.Revelation, error) {
	var rev oracle.Revelation
	err := p.withRetry(ctx, func() error {
		var err error
		rev, err = p.Revealer.FetchRevelation(ctx, handle)
		return err
	})
	return rev, err
}

// withRetry repete fn com backoff exponencial. Erros permanentes
// (handle desconhecido, aposta já resolvida) encerram na hora.
func (p *Processor) withRetry(ctx context.Context, fn func() error) error {
	r := p.Retry
	if r.Attempts <= 0 {
		r = DefaultRetry()
	}
	delay := r.Delay
	var err error
	for i := 0; i < r.Attempts; i++ {
		if err = fn(); err == nil || permanent(err) {
			return err
		}
		if i == r.Attempts-1 {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
		if delay *= 2; r.MaxDelay > 0 && delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, oracle.ErrUnknownHandle) || errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrRejected)
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, stage string) error {
	if p.DLQ == nil {
		return nil
	}
	dl := kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: append(append([]kafka.Header(nil), m.Headers...), kafka.Header{Key: "dlq_stage", Value: []byte(stage)}),
	}
	if err := p.DLQ.WriteMessages(ctx, dl); err != nil {
		p.onError("dlq")
		return err
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
