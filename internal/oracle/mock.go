package oracle

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MockOracle é um provedor determinístico em memória.
// Handles são números de sequência a partir de 1 e o segredo de cada pedido
// vem de HashChain, então a mesma semente reproduz os mesmos resultados.
//
// Suporta os dois modos: FetchRevelation (pull) e Fulfill, que entrega a
// revelação ao callback registrado em OnRevelation (push). O callback nunca é
// chamado de dentro de RequestRandomness. Um handle só sai de Pending quando o
// callback aceita a revelação (ou responde ErrAlreadyResolved), ou depois de
// mockMaxDeliveries falhas.
type MockOracle struct {
	mu          sync.Mutex
	chain       HashChain
	fee         decimal.Decimal
	seq         uint64
	requests    map[string]*mockRequest
	order       []string
	unavailable error
	callback    func(ctx context.Context, rev Revelation) error
}

// mockMaxDeliveries limita as tentativas de entrega de um handle órfão
const mockMaxDeliveries = 8

type mockRequest struct {
	seq        uint64
	req        Request
	fulfilled  bool
	deliveries int
}

// NewMockOracle cria o mock com a semente e a taxa informadas
func NewMockOracle(seed string, fee decimal.Decimal) *MockOracle {
	return &MockOracle{
		chain:    NewHashChain(seed),
		fee:      fee,
		requests: make(map[string]*mockRequest),
	}
}

// SetFee altera a taxa cobrada
func (m *MockOracle) SetFee(fee decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fee = fee
}

// SetUnavailable faz todas as chamadas falharem com err (nil restaura)
func (m *MockOracle) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

// OnRevelation registra o callback do modo push
func (m *MockOracle) OnRevelation(fn func(ctx context.Context, rev Revelation) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = fn
}

func (m *MockOracle) Fee(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable != nil {
		return decimal.Zero, m.unavailable
	}
	return m.fee, nil
}

func (m *MockOracle) RequestRandomness(ctx context.Context, req Request) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable != nil {
		return Ticket{}, m.unavailable
	}
	if req.Fee.LessThan(m.fee) {
		return Ticket{}, ErrFeeTooLow
	}
	m.seq++
	handle := strconv.FormatUint(m.seq, 10)
	m.requests[handle] = &mockRequest{seq: m.seq, req: req}
	m.order = append(m.order, handle)
	return Ticket{Handle: handle, ProviderCommitment: Commit(m.chain.At(m.seq))}, nil
}

func (m *MockOracle) FetchRevelation(ctx context.Context, handle string) (Revelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable != nil {
		return Revelation{}, m.unavailable
	}
	r, ok := m.requests[handle]
	if !ok {
		return Revelation{}, ErrUnknownHandle
	}
	return Revelation{Handle: handle, ProviderRandom: m.chain.At(r.seq)}, nil
}

// Fulfill entrega a revelação do handle ao callback push
func (m *MockOracle) Fulfill(ctx context.Context, handle string) error {
	m.mu.Lock()
	r, ok := m.requests[handle]
	cb := m.callback
	if !ok {
		m.mu.Unlock()
		return ErrUnknownHandle
	}
	rev := Revelation{Handle: handle, ProviderRandom: m.chain.At(r.seq)}
	m.mu.Unlock()

	var err error
	if cb != nil {
		err = cb(ctx, rev)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r.deliveries++
	if err == nil || errors.Is(err, ErrAlreadyResolved) || r.deliveries >= mockMaxDeliveries {
		r.fulfilled = true
	}
	return err
}

// Pending lista os handles ainda não entregues via Fulfill, na ordem dos pedidos
func (m *MockOracle) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, h := range m.order {
		if !m.requests[h].fulfilled {
			out = append(out, h)
		}
	}
	return out
}

// Requested devolve o pedido recebido para um handle
func (m *MockOracle) Requested(handle string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[handle]
	if !ok {
		return Request{}, false
	}
	return r.req, true
}

// Run entrega periodicamente todos os pedidos pendentes ao callback push.
// Usado quando o serviço roda com o oráculo embutido (ORACLE_MODE=mock).
func (m *MockOracle) Run(ctx context.Context, clock quartz.Clock, every time.Duration, log *zap.Logger) error {
	tk := clock.TickerFunc(ctx, every, func() error {
		for _, h := range m.Pending() {
			if err := m.Fulfill(ctx, h); err != nil {
				log.Warn("mock oracle fulfill", zap.String("handle", h), zap.Error(err))
			}
		}
		return nil
	}, "mock-oracle")
	if err := tk.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
