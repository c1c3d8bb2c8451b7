// Package server implementa o oracle-simulator: um provedor HTTP de
// aleatoriedade commit-reveal baseado em cadeia de hashes, com entrega push
// via callback e retentativas.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrNotRevealed   = errors.New("revelation not available yet")
	ErrFeeTooLow     = errors.New("fee below provider fee")
	ErrBadCommitment = errors.New("user commitment must be non-zero")
)

const (
	maxDeliveryAttempts = 8
	baseBackoff         = 500 * time.Millisecond
	maxBackoff          = 30 * time.Second
)

type request struct {
	handle         string
	seq            uint64
	fee            decimal.Decimal
	userCommitment common.Hash
	callbackURL    string
	createdAt      time.Time

	attempts    int
	nextAttempt time.Time
	done        bool // entregue, aceito como duplicado ou desistido
}

// Hooks recebe notificações para métricas; qualquer campo pode ser nil
type Hooks struct {
	OnRequest  func()
	OnReveal   func()
	OnCallback func(outcome string) // delivered | duplicate | retry | gave_up
}

// Simulator guarda os pedidos em memória. O segredo de cada pedido vem de
// HashChain.At(seq); o handle é um uuid aleatório.
type Simulator struct {
	chain       oracle.HashChain
	fee         decimal.Decimal
	revealDelay time.Duration
	clock       quartz.Clock
	http        *http.Client
	log         *zap.Logger
	hooks       Hooks

	mu       sync.Mutex
	seq      uint64
	requests map[string]*request
}

type Config struct {
	Seed        string
	Fee         decimal.Decimal
	RevealDelay time.Duration
	Clock       quartz.Clock
	HTTPClient  *http.Client
	Hooks       Hooks
}

func New(cfg Config, log *zap.Logger) *Simulator {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		chain:       oracle.NewHashChain(cfg.Seed),
		fee:         cfg.Fee,
		revealDelay: cfg.RevealDelay,
		clock:       cfg.Clock,
		http:        cfg.HTTPClient,
		log:         log,
		hooks:       cfg.Hooks,
		requests:    make(map[string]*request),
	}
}

func (s *Simulator) Fee() decimal.Decimal { return s.fee }

// Request registra um pedido e devolve handle + compromisso do provedor
func (s *Simulator) Request(body oracleapi.RequestBody) (oracleapi.TicketResponse, error) {
	if body.Fee.LessThan(s.fee) {
		return oracleapi.TicketResponse{}, ErrFeeTooLow
	}
	if body.UserCommitment == (common.Hash{}) {
		return oracleapi.TicketResponse{}, ErrBadCommitment
	}
	s.mu.Lock()
	s.seq++
	now := s.clock.Now()
	r := &request{
		handle:         uuid.NewString(),
		seq:            s.seq,
		fee:            body.Fee,
		userCommitment: body.UserCommitment,
		callbackURL:    body.CallbackURL,
		createdAt:      now,
		nextAttempt:    now.Add(s.revealDelay),
		done:           body.CallbackURL == "",
	}
	s.requests[r.handle] = r
	s.mu.Unlock()

	if s.hooks.OnRequest != nil {
		s.hooks.OnRequest()
	}
	s.log.Info("randomness requested",
		zap.String("handle", r.handle),
		zap.Uint64("seq", r.seq),
		zap.Bool("push", r.callbackURL != ""),
	)
	return oracleapi.TicketResponse{Handle: r.handle, ProviderCommitment: oracle.Commit(s.chain.At(r.seq))}, nil
}

// Reveal devolve a revelação depois do atraso configurado
func (s *Simulator) Reveal(handle string) (oracleapi.Revelation, error) {
	s.mu.Lock()
	r, ok := s.requests[handle]
	s.mu.Unlock()
	if !ok {
		return oracleapi.Revelation{}, ErrUnknownHandle
	}
	if s.clock.Since(r.createdAt) < s.revealDelay {
		return oracleapi.Revelation{}, ErrNotRevealed
	}
	if s.hooks.OnReveal != nil {
		s.hooks.OnReveal()
	}
	return oracleapi.Revelation{Handle: handle, ProviderRandom: s.chain.At(r.seq)}, nil
}

// DeliverDue envia os callbacks push vencidos. Sucesso (2xx) ou 409 de aposta
// já fechada encerram o pedido, e 409 de prova inválida desiste na hora.
// Handle desconhecido (a aposta ainda não foi gravada) e os demais status são
// retentados com backoff exponencial até maxDeliveryAttempts.
func (s *Simulator) DeliverDue(ctx context.Context) int {
	now := s.clock.Now()
	s.mu.Lock()
	var due []*request
	for _, r := range s.requests {
		if !r.done && !now.Before(r.nextAttempt) {
			due = append(due, r)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	delivered := 0
	for _, r := range due {
		rev := oracleapi.Revelation{Handle: r.handle, ProviderRandom: s.chain.At(r.seq)}
		status, reason, err := s.post(ctx, r.callbackURL, rev)

		s.mu.Lock()
		r.attempts++
		outcome := "retry"
		switch {
		case err == nil && status < 300:
			r.done, outcome = true, "delivered"
			delivered++
		case status == http.StatusConflict && reason == oracleapi.ReasonBadRevelation:
			r.done, outcome = true, "gave_up"
		case status == http.StatusConflict && reason != oracleapi.ReasonUnknownHandle:
			r.done, outcome = true, "duplicate"
		case r.attempts >= maxDeliveryAttempts:
			r.done, outcome = true, "gave_up"
		default:
			r.nextAttempt = now.Add(backoff(r.attempts))
		}
		attempts := r.attempts
		s.mu.Unlock()

		if s.hooks.OnCallback != nil {
			s.hooks.OnCallback(outcome)
		}
		log := s.log.With(zap.String("handle", r.handle), zap.Int("attempt", attempts), zap.Int("status", status), zap.String("reason", reason))
		switch outcome {
		case "retry":
			log.Warn("callback failed, will retry", zap.Error(err))
		case "gave_up":
			log.Error("callback abandoned", zap.Error(err))
		default:
			log.Info("callback " + outcome)
		}
	}
	return delivered
}

// Run entrega callbacks periodicamente até ctx ser cancelado
func (s *Simulator) Run(ctx context.Context, every time.Duration) error {
	w := s.clock.TickerFunc(ctx, every, func() error {
		s.DeliverDue(ctx)
		return nil
	}, "deliver")
	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// post envia o callback; em erro devolve também o "reason" do corpo, se houver
func (s *Simulator) post(ctx context.Context, url string, rev oracleapi.Revelation) (int, string, error) {
	b, err := json.Marshal(rev)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 300 {
		return res.StatusCode, "", nil
	}
	var er httpx.ErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&er)
	return res.StatusCode, er.Reason, fmt.Errorf("callback http %d: %s", res.StatusCode, er.Message)
}

func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
