// Package settlement implementa a máquina de estados de liquidação de apostas:
// PENDING -> SETTLED | CANCELLED, exatamente uma vez.
//
// Cada operação roda numa única transação do Store que trava a aposta, o caixa
// e a carteira do dono. O estado da aposta muda antes de qualquer crédito, e
// os eventos só saem para o barramento depois do commit. Nenhuma operação
// espera pelo oráculo: PlaceBet só obtém o handle, e a resolução chega depois
// por Resolve/ResolveRevelation (push ou pull, a máquina não distingue).
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/address"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/events"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/topics"
)

// Hooks recebe notificações síncronas após cada operação (métricas).
// Qualquer campo pode ser nil.
type Hooks struct {
	OnPlaced    func(w Wager)
	OnSettled   func(w Wager)
	OnCancelled func(w Wager)
	OnRejected  func(op string, kind Kind)
	OnAnomaly   func(reason string)
	OnHouse     func(l house.Ledger)
}

// Topics são os tópicos de destino de cada tipo de evento
type Topics struct {
	Placed    string
	Settled   string
	Cancelled string
}

func DefaultTopics() Topics {
	return Topics{Placed: topics.WagerPlaced, Settled: topics.WagerSettled, Cancelled: topics.WagerCancelled}
}

type Machine struct {
	store  Store
	oracle oracle.Oracle
	pub    Publisher
	log    *zap.Logger
	rules  Rules
	clock  quartz.Clock
	hooks  Hooks
	topics Topics
}

type Option func(*Machine)

func WithRules(r Rules) Option { return func(m *Machine) { m.rules = r } }

func WithClock(c quartz.Clock) Option { return func(m *Machine) { m.clock = c } }

func WithHooks(h Hooks) Option { return func(m *Machine) { m.hooks = h } }

func WithTopics(t Topics) Option { return func(m *Machine) { m.topics = t } }

// New cria a máquina. pub pode ser nil; nesse caso os eventos ficam no outbox
// até o Relay publicá-los.
func New(store Store, orc oracle.Oracle, pub Publisher, log *zap.Logger, opts ...Option) (*Machine, error) {
	m := &Machine{
		store:  store,
		oracle: orc,
		pub:    pub,
		log:    log,
		rules:  DefaultRules(),
		clock:  quartz.NewReal(),
		topics: DefaultTopics(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if err := m.rules.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) Rules() Rules { return m.rules }

// PlaceBetRequest é o pedido de aposta. OracleFee é o valor pago pelo jogador
// para o oráculo, além do stake; precisa cobrir a taxa corrente.
type PlaceBetRequest struct {
	Owner      string
	Stake      decimal.Decimal
	Choice     Choice
	UserRandom common.Hash
	OracleFee  decimal.Decimal
}

// PlaceBet aceita a aposta: debita stake + taxa do oráculo da carteira, reserva
// a exposição no caixa, pede aleatoriedade e grava a aposta PENDING.
// Qualquer falha desfaz tudo.
func (m *Machine) PlaceBet(ctx context.Context, req PlaceBetRequest) (Wager, error) {
	const op = "place_bet"

	w, err := m.placeBet(ctx, req)
	if err != nil {
		return Wager{}, m.reject(op, err)
	}
	m.log.Info("wager placed",
		zap.Int64("wager_id", w.ID),
		zap.String("owner", w.Owner),
		zap.String("stake", w.Stake.String()),
		zap.String("choice", string(w.Choice)),
		zap.String("handle", w.Handle),
	)
	if m.hooks.OnPlaced != nil {
		m.hooks.OnPlaced(w)
	}
	return w, nil
}

func (m *Machine) placeBet(ctx context.Context, req PlaceBetRequest) (Wager, error) {
	const op = "place_bet"

	owner, err := address.Normalize(req.Owner)
	if err != nil {
		return Wager{}, fail(op, KindValidation, ErrInvalidOwner)
	}
	if !req.Choice.Valid() {
		return Wager{}, fail(op, KindValidation, ErrInvalidChoice)
	}
	if err := m.rules.CheckStake(req.Stake); err != nil {
		return Wager{}, fail(op, KindValidation, err)
	}
	if req.UserRandom == (common.Hash{}) {
		return Wager{}, fail(op, KindValidation, ErrZeroSeed)
	}
	if req.OracleFee.IsNegative() {
		return Wager{}, fail(op, KindValidation, ErrOracleFeeTooLow)
	}
	if !house.FitsScale(req.OracleFee) {
		return Wager{}, fail(op, KindValidation, ErrAmountPrecision)
	}
	fee, err := m.oracle.Fee(ctx)
	if err != nil {
		return Wager{}, fail(op, KindUnavailable, errors.Join(ErrOracleUnavailable, err))
	}
	if req.OracleFee.LessThan(fee) {
		return Wager{}, fail(op, KindValidation, ErrOracleFeeTooLow)
	}

	now := m.clock.Now()
	w := Wager{
		Owner:           owner,
		Stake:           req.Stake,
		OracleFee:       req.OracleFee,
		PotentialPayout: m.rules.PotentialPayout(req.Stake),
		HouseFee:        m.rules.HouseFee(req.Stake),
		Choice:          req.Choice,
		State:           StatePending,
		UserRandom:      req.UserRandom,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.precheck(ctx, op, owner, &w); err != nil {
		return Wager{}, err
	}

	// O pedido ao oráculo acontece fora da transação: nenhum lock fica preso
	// durante a chamada de rede, e um retry da transação reaproveita o ticket.
	ticket, err := m.oracle.RequestRandomness(ctx, oracle.Request{
		Fee:            w.OracleFee,
		UserCommitment: oracle.Commit(w.UserRandom),
	})
	if err != nil {
		if errors.Is(err, oracle.ErrFeeTooLow) {
			return Wager{}, fail(op, KindValidation, ErrOracleFeeTooLow)
		}
		return Wager{}, fail(op, KindUnavailable, errors.Join(ErrOracleUnavailable, err))
	}
	w.Handle = ticket.Handle
	w.ProviderCommitment = ticket.ProviderCommitment

	var (
		evs    []Event
		ledger house.Ledger
	)
	err = m.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.LockHouse(ctx)
		if err != nil {
			return err
		}
		wallet, err := tx.LockWallet(ctx, owner)
		if err != nil {
			return classify(op, err)
		}
		if err := wallet.Debit(w.Stake.Add(w.OracleFee)); err != nil {
			return classify(op, err)
		}
		if err := l.Accept(w.Stake, w.Exposure()); err != nil {
			return classify(op, err)
		}

		if _, err := tx.InsertWager(ctx, &w); err != nil {
			if errors.Is(err, ErrDuplicateHandle) {
				return fail(op, KindIdempotency, err)
			}
			return err
		}

		l.UpdatedAt = now
		wallet.UpdatedAt = now
		if err := tx.SaveHouse(ctx, l); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return err
		}
		if err := appendEntries(ctx, tx,
			house.Entry{Account: owner, Kind: house.EntryStake, Amount: w.Stake.Neg(), WagerID: w.ID, CreatedAt: now},
			house.Entry{Account: owner, Kind: house.EntryOracleFee, Amount: w.OracleFee.Neg(), WagerID: w.ID, CreatedAt: now},
			house.Entry{Account: house.HouseAccount, Kind: house.EntryStake, Amount: w.Stake, WagerID: w.ID, CreatedAt: now},
		); err != nil {
			return err
		}

		ev, err := m.newEvent(m.topics.Placed, events.TypeWagerPlaced, &w, func(h events.Header) any {
			return events.WagerPlaced{
				Header:    h,
				Stake:     w.Stake,
				OracleFee: w.OracleFee,
				Choice:    string(w.Choice),
				Handle:    w.Handle,
			}
		})
		if err != nil {
			return err
		}
		evs = []Event{ev}
		ledger = *l
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		// O handle já emitido fica órfão: uma revelação para ele é rejeitada
		// como unknown_handle.
		m.log.Warn("oracle handle orphaned", zap.String("handle", w.Handle), zap.Error(err))
		return Wager{}, err
	}

	m.afterCommit(ctx, ledger, evs)
	return w, nil
}

// precheck confere carteira e caixa sem travar nada, para não pedir
// aleatoriedade a uma aposta que já se sabe recusada. A transação repete as
// mesmas checagens com os locks.
func (m *Machine) precheck(ctx context.Context, op, owner string, w *Wager) error {
	wallet, err := m.store.Wallet(ctx, owner)
	if err != nil {
		return classify(op, err)
	}
	if err := wallet.Debit(w.Stake.Add(w.OracleFee)); err != nil {
		return classify(op, err)
	}
	l, err := m.store.House(ctx)
	if err != nil {
		return err
	}
	if err := l.Accept(w.Stake, w.Exposure()); err != nil {
		return classify(op, err)
	}
	return nil
}

// Resolve liquida a aposta vinculada ao handle com o valor aleatório informado.
// Uma segunda chamada para o mesmo handle é rejeitada sem efeito.
func (m *Machine) Resolve(ctx context.Context, handle string, value oracle.RandomValue) (Wager, error) {
	return m.resolve(ctx, handle, func(*Wager) (oracle.RandomValue, error) {
		return value, nil
	})
}

// ResolveRevelation confere a prova do provedor contra o compromisso gravado
// na aposta e liquida com keccak256(providerRandom || userRandom).
func (m *Machine) ResolveRevelation(ctx context.Context, rev oracle.Revelation) (Wager, error) {
	return m.resolve(ctx, rev.Handle, func(w *Wager) (oracle.RandomValue, error) {
		if !oracle.Verify(w.ProviderCommitment, rev) {
			return oracle.RandomValue{}, ErrBadRevelation
		}
		return oracle.Combine(rev.ProviderRandom, w.UserRandom), nil
	})
}

func (m *Machine) resolve(ctx context.Context, handle string, valueOf func(*Wager) (oracle.RandomValue, error)) (Wager, error) {
	const op = "resolve"

	var (
		w      Wager
		evs    []Event
		ledger house.Ledger
	)
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.LockWagerByHandle(ctx, handle)
		if errors.Is(err, ErrWagerNotFound) {
			return fail(op, KindIdempotency, ErrUnknownHandle)
		}
		if err != nil {
			return err
		}
		if locked.State != StatePending {
			return fail(op, KindIdempotency, ErrNotPending)
		}
		value, err := valueOf(locked)
		if err != nil {
			return fail(op, KindIdempotency, err)
		}

		now := m.clock.Now()
		result := ResultOf(value)
		won := result == locked.Choice
		payout := decimal.Zero
		if won {
			payout = locked.PotentialPayout
		}

		// Estado terminal gravado antes de qualquer movimentação de fundos.
		locked.State = StateSettled
		locked.Outcome = &Outcome{Result: result, Won: won, Payout: payout, Fee: locked.HouseFee}
		locked.UpdatedAt = now
		locked.ClosedAt = &now
		if err := tx.UpdateWager(ctx, locked); err != nil {
			return err
		}

		l, err := tx.LockHouse(ctx)
		if err != nil {
			return err
		}
		if err := l.Settle(locked.Exposure(), payout, locked.HouseFee); err != nil {
			return classify(op, err)
		}
		l.UpdatedAt = now
		if err := tx.SaveHouse(ctx, l); err != nil {
			return err
		}

		entries := []house.Entry{
			{Account: house.HouseAccount, Kind: house.EntryFeeAccrued, Amount: locked.HouseFee, WagerID: locked.ID, CreatedAt: now},
		}
		if won {
			if err := m.credit(ctx, tx, locked.Owner, payout, now); err != nil {
				return classify(op, err)
			}
			entries = append(entries,
				house.Entry{Account: house.HouseAccount, Kind: house.EntryPayout, Amount: payout.Neg(), WagerID: locked.ID, CreatedAt: now},
				house.Entry{Account: locked.Owner, Kind: house.EntryPayout, Amount: payout, WagerID: locked.ID, CreatedAt: now},
			)
		}
		if err := appendEntries(ctx, tx, entries...); err != nil {
			return err
		}

		ev, err := m.newEvent(m.topics.Settled, events.TypeWagerSettled, locked, func(h events.Header) any {
			return events.WagerSettled{
				Header: h,
				Choice: string(locked.Choice),
				Result: string(result),
				Won:    won,
				Payout: payout,
				Fee:    locked.HouseFee,
			}
		})
		if err != nil {
			return err
		}
		evs = []Event{ev}
		w = *locked
		ledger = *l
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		if KindOf(err) == KindIdempotency {
			m.anomaly(handle, err)
		}
		return Wager{}, m.reject(op, err)
	}

	m.log.Info("wager settled",
		zap.Int64("wager_id", w.ID),
		zap.String("handle", w.Handle),
		zap.String("result", string(w.Outcome.Result)),
		zap.Bool("won", w.Outcome.Won),
		zap.String("payout", w.Outcome.Payout.String()),
	)
	if m.hooks.OnSettled != nil {
		m.hooks.OnSettled(w)
	}
	m.afterCommit(ctx, ledger, evs)
	return w, nil
}

// Cancel devolve o stake ao dono de uma aposta PENDING cujo oráculo não
// respondeu dentro de CancelTimeout. A taxa do oráculo não é devolvida.
func (m *Machine) Cancel(ctx context.Context, id int64, caller string) (Wager, error) {
	const op = "cancel"

	var (
		w      Wager
		evs    []Event
		ledger house.Ledger
	)
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.LockWager(ctx, id)
		if errors.Is(err, ErrWagerNotFound) {
			return fail(op, KindNotFound, err)
		}
		if err != nil {
			return err
		}
		if !address.Equal(caller, locked.Owner) {
			return fail(op, KindUnauthorized, ErrNotOwner)
		}
		if locked.State != StatePending {
			return fail(op, KindIdempotency, ErrNotPending)
		}
		now := m.clock.Now()
		if now.Sub(locked.CreatedAt) <= m.rules.CancelTimeout {
			return fail(op, KindTimeout, ErrCancelTooEarly)
		}

		locked.State = StateCancelled
		locked.UpdatedAt = now
		locked.ClosedAt = &now
		if err := tx.UpdateWager(ctx, locked); err != nil {
			return err
		}

		l, err := tx.LockHouse(ctx)
		if err != nil {
			return err
		}
		if err := l.Refund(locked.Exposure(), locked.Stake); err != nil {
			return classify(op, err)
		}
		l.UpdatedAt = now
		if err := tx.SaveHouse(ctx, l); err != nil {
			return err
		}
		if err := m.credit(ctx, tx, locked.Owner, locked.Stake, now); err != nil {
			return classify(op, err)
		}
		if err := appendEntries(ctx, tx,
			house.Entry{Account: house.HouseAccount, Kind: house.EntryRefund, Amount: locked.Stake.Neg(), WagerID: locked.ID, CreatedAt: now},
			house.Entry{Account: locked.Owner, Kind: house.EntryRefund, Amount: locked.Stake, WagerID: locked.ID, CreatedAt: now},
		); err != nil {
			return err
		}

		ev, err := m.newEvent(m.topics.Cancelled, events.TypeWagerCancelled, locked, func(h events.Header) any {
			return events.WagerCancelled{Header: h, Refund: locked.Stake}
		})
		if err != nil {
			return err
		}
		evs = []Event{ev}
		w = *locked
		ledger = *l
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return Wager{}, m.reject(op, err)
	}

	m.log.Info("wager cancelled",
		zap.Int64("wager_id", w.ID),
		zap.String("owner", w.Owner),
		zap.String("refund", w.Stake.String()),
	)
	if m.hooks.OnCancelled != nil {
		m.hooks.OnCancelled(w)
	}
	m.afterCommit(ctx, ledger, evs)
	return w, nil
}

// GetWager devolve a aposta pelo id
func (m *Machine) GetWager(ctx context.Context, id int64) (Wager, error) {
	w, err := m.store.Wager(ctx, id)
	if errors.Is(err, ErrWagerNotFound) {
		return Wager{}, fail("get_wager", KindNotFound, err)
	}
	return w, err
}

// ListWagers devolve as apostas do dono em ordem de id
func (m *Machine) ListWagers(ctx context.Context, owner string) ([]Wager, error) {
	o, err := address.Normalize(owner)
	if err != nil {
		return nil, fail("list_wagers", KindValidation, ErrInvalidOwner)
	}
	return m.store.WagersByOwner(ctx, o)
}

// House devolve o estado do caixa
func (m *Machine) House(ctx context.Context) (house.Ledger, error) {
	return m.store.House(ctx)
}

// OracleFee devolve a taxa corrente do oráculo
func (m *Machine) OracleFee(ctx context.Context) (decimal.Decimal, error) {
	fee, err := m.oracle.Fee(ctx)
	if err != nil {
		return decimal.Zero, fail("oracle_fee", KindUnavailable, errors.Join(ErrOracleUnavailable, err))
	}
	return fee, nil
}

func (m *Machine) credit(ctx context.Context, tx Tx, owner string, amount decimal.Decimal, now time.Time) error {
	wallet, err := tx.LockWallet(ctx, owner)
	if err != nil {
		return err
	}
	if err := wallet.Credit(amount); err != nil {
		return err
	}
	wallet.UpdatedAt = now
	return tx.SaveWallet(ctx, wallet)
}

func appendEntries(ctx context.Context, tx Tx, entries ...house.Entry) error {
	for _, e := range entries {
		if e.Amount.IsZero() {
			continue
		}
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// newEvent monta a linha do outbox; o EventID do payload é o id da linha
func (m *Machine) newEvent(topic, typ string, w *Wager, build func(events.Header) any) (Event, error) {
	id := uuid.New()
	now := m.clock.Now()
	b, err := json.Marshal(build(events.Header{
		EventID: id.String(),
		Type:    typ,
		WagerID: w.ID,
		Owner:   w.Owner,
		Ts:      now,
	}))
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        id,
		Topic:     topic,
		Key:       strconv.FormatInt(w.ID, 10),
		Payload:   b,
		CreatedAt: now,
	}, nil
}

// afterCommit publica os eventos gravados e marca o outbox.
// Falha de publicação não desfaz nada: o Relay republica depois.
func (m *Machine) afterCommit(ctx context.Context, l house.Ledger, evs []Event) {
	if m.hooks.OnHouse != nil {
		m.hooks.OnHouse(l)
	}
	if m.pub == nil || len(evs) == 0 {
		return
	}
	if err := m.pub.Publish(ctx, evs); err != nil {
		m.log.Warn("publish deferred to relay", zap.Int("events", len(evs)), zap.Error(err))
		return
	}
	ids := make([]uuid.UUID, len(evs))
	for i, e := range evs {
		ids[i] = e.ID
	}
	if err := m.store.MarkPublished(ctx, ids); err != nil {
		m.log.Warn("mark published", zap.Error(err))
	}
}

func (m *Machine) reject(op string, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = fail(op, KindInternal, err)
	}
	if m.hooks.OnRejected != nil {
		m.hooks.OnRejected(op, e.Kind)
	}
	if e.Kind == KindInternal {
		m.log.Error(op+" failed", zap.Error(err))
	}
	return e
}

// anomaly registra rejeições de idempotência: replay, oráculo fora do
// protocolo ou prova inválida.
func (m *Machine) anomaly(handle string, err error) {
	reason := ReasonOf(err)
	if reason == "" {
		reason = "unknown"
	}
	m.log.Warn("resolve anomaly", zap.String("handle", handle), zap.String("reason", reason), zap.Error(err))
	if m.hooks.OnAnomaly != nil {
		m.hooks.OnAnomaly(reason)
	}
}
