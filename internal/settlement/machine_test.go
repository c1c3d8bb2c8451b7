package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/ledger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/events"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/topics"
)

const (
	operator = "0x000000000000000000000000000000000000dEaD"
	player   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	stranger = "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"
)

var (
	even = common.HexToHash("0x02")
	odd  = common.HexToHash("0x03")
	seed = common.HexToHash("0xc0ffee")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// recordingPublisher guarda os eventos publicados; onPublish roda antes de gravar
type recordingPublisher struct {
	mu        sync.Mutex
	events    []settlement.Event
	err       error
	onPublish func(ctx context.Context, evs []settlement.Event)
}

func (p *recordingPublisher) Publish(ctx context.Context, evs []settlement.Event) error {
	if p.onPublish != nil {
		p.onPublish(ctx, evs)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

type MachineSuite struct {
	suite.Suite

	ctx       context.Context
	store     *ledger.Memory
	orc       *oracle.MockOracle
	clock     *quartz.Mock
	pub       *recordingPublisher
	funds     *house.Service
	m         *settlement.Machine
	anomalies []string
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.reset("10")
}

// reset monta um ambiente novo com o caixa da casa em houseFunds e 5 na carteira do jogador
func (s *MachineSuite) reset(houseFunds string) {
	s.ctx = context.Background()
	s.store = ledger.NewMemory()
	s.orc = oracle.NewMockOracle("suite", dec("0.001"))
	s.clock = quartz.NewMock(s.T())
	s.pub = &recordingPublisher{}
	s.anomalies = nil

	funds, err := house.NewService(s.store, operator, s.clock, zap.NewNop())
	s.Require().NoError(err)
	s.funds = funds
	_, err = funds.DepositOperatorFunds(s.ctx, operator, dec(houseFunds))
	s.Require().NoError(err)
	_, err = funds.DepositWallet(s.ctx, player, dec("5"))
	s.Require().NoError(err)

	s.m, err = settlement.New(s.store, s.orc, s.pub, zap.NewNop(),
		settlement.WithClock(s.clock),
		settlement.WithHooks(settlement.Hooks{
			OnAnomaly: func(reason string) { s.anomalies = append(s.anomalies, reason) },
		}),
	)
	s.Require().NoError(err)
}

func (s *MachineSuite) place(stake string, choice settlement.Choice) settlement.Wager {
	s.T().Helper()
	w, err := s.m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
		Owner:      player,
		Stake:      dec(stake),
		Choice:     choice,
		UserRandom: seed,
		OracleFee:  dec("0.001"),
	})
	s.Require().NoError(err)
	return w
}

func (s *MachineSuite) house() house.Ledger {
	l, err := s.m.House(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(l.Check())
	return l
}

func (s *MachineSuite) balance(owner string) decimal.Decimal {
	w, err := s.funds.Wallet(s.ctx, owner)
	s.Require().NoError(err)
	return w.Balance
}

func (s *MachineSuite) equalDec(want string, got decimal.Decimal) {
	s.T().Helper()
	s.Truef(dec(want).Equal(got), "want %s, got %s", want, got)
}

func (s *MachineSuite) requireKind(kind settlement.Kind, err error) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(kind, settlement.KindOf(err), err.Error())
}

func (s *MachineSuite) TestPlaceBetReservesExposure() {
	w := s.place("1.0", settlement.Heads)

	s.Equal(int64(1), w.ID)
	s.Equal(settlement.StatePending, w.State)
	s.Equal(player, w.Owner)
	s.NotEmpty(w.Handle)
	s.equalDec("1.9", w.PotentialPayout)
	s.equalDec("0.05", w.HouseFee)

	l := s.house()
	s.equalDec("11", l.TotalBalance)
	s.equalDec("1.95", l.Exposure)
	s.equalDec("0", l.ReservedFees)
	s.equalDec("3.999", s.balance(player))

	req, ok := s.orc.Requested(w.Handle)
	s.Require().True(ok)
	s.equalDec("0.001", req.Fee)
	s.Equal(oracle.Commit(seed), req.UserCommitment)
}

func (s *MachineSuite) TestRoundTripWin() {
	w := s.place("1.0", settlement.Heads)

	got, err := s.m.Resolve(s.ctx, w.Handle, even)
	s.Require().NoError(err)
	s.Equal(settlement.StateSettled, got.State)
	s.Require().NotNil(got.Outcome)
	s.True(got.Outcome.Won)
	s.Equal(settlement.Heads, got.Outcome.Result)
	s.equalDec("1.9", got.Outcome.Payout)

	l := s.house()
	s.equalDec("9.1", l.TotalBalance)
	s.equalDec("0.05", l.ReservedFees)
	s.equalDec("0", l.Exposure)
	s.equalDec("5.899", s.balance(player))
}

func (s *MachineSuite) TestRoundTripLoss() {
	w := s.place("1.0", settlement.Heads)

	got, err := s.m.Resolve(s.ctx, w.Handle, odd)
	s.Require().NoError(err)
	s.False(got.Outcome.Won)
	s.Equal(settlement.Tails, got.Outcome.Result)
	s.True(got.Outcome.Payout.IsZero())

	l := s.house()
	s.equalDec("11", l.TotalBalance)
	s.equalDec("0.05", l.ReservedFees)
	s.equalDec("0", l.Exposure)
	s.equalDec("3.999", s.balance(player))
}

func (s *MachineSuite) TestTwoBetsThenFirstWins() {
	first := s.place("0.5", settlement.Heads)
	s.place("0.5", settlement.Heads)

	l := s.house()
	s.equalDec("11", l.TotalBalance)
	s.equalDec("1.95", l.Exposure)

	got, err := s.m.Resolve(s.ctx, first.Handle, even)
	s.Require().NoError(err)
	s.equalDec("0.95", got.Outcome.Payout)

	l = s.house()
	s.equalDec("0.025", l.ReservedFees)
	// os stakes escrowed contam no total: 10 + 0.5 + 0.5 - 0.95
	s.equalDec("10.05", l.TotalBalance)
	s.equalDec("0.975", l.Exposure)
}

func (s *MachineSuite) TestDuplicateResolveIsRejected() {
	w := s.place("1.0", settlement.Heads)
	_, err := s.m.Resolve(s.ctx, w.Handle, even)
	s.Require().NoError(err)
	before := s.house()

	_, err = s.m.Resolve(s.ctx, w.Handle, even)
	s.requireKind(settlement.KindIdempotency, err)
	s.ErrorIs(err, settlement.ErrNotPending)

	_, err = s.m.Resolve(s.ctx, "no-such-handle", odd)
	s.requireKind(settlement.KindIdempotency, err)
	s.ErrorIs(err, settlement.ErrUnknownHandle)

	after := s.house()
	s.True(before.TotalBalance.Equal(after.TotalBalance))
	s.True(before.ReservedFees.Equal(after.ReservedFees))
	s.equalDec("5.899", s.balance(player))
	s.Equal([]string{"not_pending", "unknown_handle"}, s.anomalies)
}

func (s *MachineSuite) TestCancelAfterTimeout() {
	w := s.place("0.5", settlement.Tails)

	s.clock.Advance(time.Hour).MustWait(s.ctx)
	_, err := s.m.Cancel(s.ctx, w.ID, player)
	s.requireKind(settlement.KindTimeout, err)
	s.ErrorIs(err, settlement.ErrCancelTooEarly)

	s.clock.Advance(time.Second).MustWait(s.ctx)
	_, err = s.m.Cancel(s.ctx, w.ID, stranger)
	s.requireKind(settlement.KindUnauthorized, err)

	got, err := s.m.Cancel(s.ctx, w.ID, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	s.Require().NoError(err)
	s.Equal(settlement.StateCancelled, got.State)
	s.Nil(got.Outcome)
	s.NotNil(got.ClosedAt)

	l := s.house()
	s.equalDec("10", l.TotalBalance)
	s.equalDec("0", l.Exposure)
	s.equalDec("0", l.ReservedFees)
	// stake devolvido, taxa do oráculo não
	s.equalDec("4.999", s.balance(player))

	_, err = s.m.Cancel(s.ctx, w.ID, player)
	s.ErrorIs(err, settlement.ErrNotPending)
	_, err = s.m.Resolve(s.ctx, w.Handle, even)
	s.ErrorIs(err, settlement.ErrNotPending)
}

func (s *MachineSuite) TestCancelUnknownWager() {
	_, err := s.m.Cancel(s.ctx, 42, player)
	s.requireKind(settlement.KindNotFound, err)
}

func (s *MachineSuite) TestValidationRejectsWithoutSideEffects() {
	cases := []struct {
		name string
		req  settlement.PlaceBetRequest
		want error
	}{
		{"below min", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.009"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001")}, settlement.ErrStakeOutOfRange},
		{"above max", settlement.PlaceBetRequest{Owner: player, Stake: dec("1.01"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001")}, settlement.ErrStakeOutOfRange},
		{"bad choice", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.5"), Choice: "EDGE", UserRandom: seed, OracleFee: dec("0.001")}, settlement.ErrInvalidChoice},
		{"zero seed", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, OracleFee: dec("0.001")}, settlement.ErrZeroSeed},
		{"bad owner", settlement.PlaceBetRequest{Owner: "alice", Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001")}, settlement.ErrInvalidOwner},
		{"fee too low", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.0009")}, settlement.ErrOracleFeeTooLow},
		{"stake beyond ledger scale", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.1234567890123456789"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001")}, settlement.ErrAmountPrecision},
		{"fee beyond ledger scale", settlement.PlaceBetRequest{Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.0010000000000000001")}, settlement.ErrAmountPrecision},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.m.PlaceBet(s.ctx, tc.req)
			s.requireKind(settlement.KindValidation, err)
			s.ErrorIs(err, tc.want)
		})
	}

	list, err := s.m.ListWagers(s.ctx, player)
	s.Require().NoError(err)
	s.Empty(list)
	s.Empty(s.orc.Pending())
	s.equalDec("5", s.balance(player))
	s.equalDec("10", s.house().TotalBalance)
}

func (s *MachineSuite) TestInsufficientHouseBalance() {
	s.reset("0.5")

	_, err := s.m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
		Owner: player, Stake: dec("1.0"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001"),
	})
	s.requireKind(settlement.KindResource, err)
	s.ErrorIs(err, settlement.ErrInsufficientHouseBalance)

	s.Empty(s.orc.Pending())
	s.equalDec("5", s.balance(player))
	l := s.house()
	s.equalDec("0.5", l.TotalBalance)
	s.equalDec("0", l.Exposure)
}

func (s *MachineSuite) TestInsufficientPlayerFunds() {
	_, err := s.funds.WithdrawWallet(s.ctx, player, dec("4.5"))
	s.Require().NoError(err)

	_, err = s.m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
		Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001"),
	})
	s.requireKind(settlement.KindTransfer, err)
	s.ErrorIs(err, house.ErrInsufficientFunds)
	s.equalDec("10", s.house().TotalBalance)
	s.Empty(s.orc.Pending())
}

func (s *MachineSuite) TestOracleUnavailable() {
	s.orc.SetUnavailable(errors.New("provider down"))

	_, err := s.m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
		Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001"),
	})
	s.requireKind(settlement.KindUnavailable, err)
	s.ErrorIs(err, settlement.ErrOracleUnavailable)
	s.equalDec("5", s.balance(player))

	_, err = s.m.OracleFee(s.ctx)
	s.requireKind(settlement.KindUnavailable, err)
}

func (s *MachineSuite) TestFailedPayoutRollsBackSettlement() {
	w := s.place("1.0", settlement.Heads)
	_, err := s.funds.FreezeWallet(s.ctx, operator, player, true)
	s.Require().NoError(err)
	before := s.house()

	_, err = s.m.Resolve(s.ctx, w.Handle, even)
	s.requireKind(settlement.KindTransfer, err)
	s.ErrorIs(err, house.ErrWalletFrozen)

	got, err := s.m.GetWager(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(settlement.StatePending, got.State)
	after := s.house()
	s.True(before.Exposure.Equal(after.Exposure))
	s.True(before.TotalBalance.Equal(after.TotalBalance))

	_, err = s.funds.FreezeWallet(s.ctx, operator, player, false)
	s.Require().NoError(err)
	got, err = s.m.Resolve(s.ctx, w.Handle, even)
	s.Require().NoError(err)
	s.True(got.Outcome.Won)
}

func (s *MachineSuite) TestLossSettlesWithFrozenWallet() {
	w := s.place("1.0", settlement.Heads)
	_, err := s.funds.FreezeWallet(s.ctx, operator, player, true)
	s.Require().NoError(err)

	got, err := s.m.Resolve(s.ctx, w.Handle, odd)
	s.Require().NoError(err)
	s.False(got.Outcome.Won)
}

func (s *MachineSuite) TestReentrantResolveFromPublisher() {
	w := s.place("1.0", settlement.Heads)

	var reentrant []error
	s.pub.onPublish = func(ctx context.Context, evs []settlement.Event) {
		for _, e := range evs {
			if e.Topic == topics.WagerSettled {
				_, err := s.m.Resolve(ctx, w.Handle, even)
				reentrant = append(reentrant, err)
			}
		}
	}

	_, err := s.m.Resolve(s.ctx, w.Handle, even)
	s.Require().NoError(err)
	s.Require().Len(reentrant, 1)
	s.ErrorIs(reentrant[0], settlement.ErrNotPending)
	s.equalDec("5.899", s.balance(player))
	s.equalDec("9.1", s.house().TotalBalance)
}

func (s *MachineSuite) TestEventsPublishedAfterCommit() {
	w := s.place("1.0", settlement.Tails)
	_, err := s.m.Resolve(s.ctx, w.Handle, odd)
	s.Require().NoError(err)

	s.Equal([]string{topics.WagerPlaced, topics.WagerSettled}, s.pub.topics())

	var placed events.WagerPlaced
	s.Require().NoError(json.Unmarshal(s.pub.events[0].Payload, &placed))
	s.Equal(events.TypeWagerPlaced, placed.Type)
	s.Equal(w.ID, placed.WagerID)
	s.Equal(w.Handle, placed.Handle)
	s.Equal(s.pub.events[0].ID.String(), placed.EventID)

	var settled events.WagerSettled
	s.Require().NoError(json.Unmarshal(s.pub.events[1].Payload, &settled))
	s.True(settled.Won)
	s.Equal("TAILS", settled.Result)
	s.equalDec("1.9", settled.Payout)

	pending, err := s.store.UnpublishedEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *MachineSuite) TestRelayRepublishesAfterBrokerFailure() {
	s.pub.err = errors.New("broker down")
	s.place("0.5", settlement.Heads)

	pending, err := s.store.UnpublishedEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)

	s.pub.err = nil
	relay := settlement.NewRelay(s.store, s.pub, zap.NewNop(), s.clock, time.Second)
	n, err := relay.Flush(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal([]string{topics.WagerPlaced}, s.pub.topics())

	n, err = relay.Flush(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *MachineSuite) TestResolveRevelationPull() {
	w := s.place("1.0", settlement.Heads)

	rev, err := s.orc.FetchRevelation(s.ctx, w.Handle)
	s.Require().NoError(err)

	bad := rev
	bad.ProviderRandom = common.HexToHash("0xbad")
	_, err = s.m.ResolveRevelation(s.ctx, bad)
	s.requireKind(settlement.KindIdempotency, err)
	s.ErrorIs(err, settlement.ErrBadRevelation)
	s.Equal([]string{"bad_revelation"}, s.anomalies)

	got, err := s.m.ResolveRevelation(s.ctx, rev)
	s.Require().NoError(err)
	want := settlement.ResultOf(oracle.Combine(rev.ProviderRandom, seed))
	s.Equal(want, got.Outcome.Result)
	s.Equal(want == settlement.Heads, got.Outcome.Won)
}

func (s *MachineSuite) TestResolveRevelationPush() {
	s.orc.OnRevelation(func(ctx context.Context, rev oracle.Revelation) error {
		_, err := s.m.ResolveRevelation(ctx, rev)
		return err
	})
	w := s.place("0.25", settlement.Tails)

	s.Require().NoError(s.orc.Fulfill(s.ctx, w.Handle))
	got, err := s.m.GetWager(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(settlement.StateSettled, got.State)

	// entrega repetida do provedor
	err = s.orc.Fulfill(s.ctx, w.Handle)
	s.ErrorIs(err, settlement.ErrNotPending)
}

func (s *MachineSuite) TestListWagersOrdered() {
	a := s.place("0.1", settlement.Heads)
	b := s.place("0.2", settlement.Tails)

	list, err := s.m.ListWagers(s.ctx, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(a.ID, list[0].ID)
	s.Equal(b.ID, list[1].ID)

	_, err = s.m.ListWagers(s.ctx, "nope")
	s.requireKind(settlement.KindValidation, err)
}

func (s *MachineSuite) TestConcurrentPlaceBetNeverOvercommits() {
	_, err := s.funds.DepositWallet(s.ctx, player, dec("50"))
	s.Require().NoError(err)

	const attempts = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
				Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001"),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if settlement.KindOf(err) == settlement.KindResource {
				rejected++
			}
		}()
	}
	wg.Wait()

	// cada aposta aceita consome 0.975 - 0.5 do saldo livre de 10
	s.Equal(21, accepted)
	s.Equal(attempts-21, rejected)
	l := s.house()
	s.equalDec("20.475", l.Exposure)
	s.False(l.Available().IsNegative())
}

func TestRulesValidate(t *testing.T) {
	r := settlement.DefaultRules()
	require.NoError(t, r.Validate())
	require.Equal(t, "0.05", r.HouseFee(dec("1")).String())

	r.MaxBet = dec("0.001")
	require.Error(t, r.Validate())
}

func TestCheckStakeKeepsLedgerScale(t *testing.T) {
	r := settlement.DefaultRules()
	require.NoError(t, r.CheckStake(dec("0.1234567890123456")))
	require.Equal(t, "0.00617283945061728", r.HouseFee(dec("0.1234567890123456")).String())

	// a taxa de 5% acrescenta duas casas: 17 casas no stake já não cabem
	require.ErrorIs(t, r.CheckStake(dec("0.12345678901234567")), settlement.ErrAmountPrecision)
	require.NoError(t, r.CheckStake(dec("0.5000000000000000000000")))
}

func TestParseChoice(t *testing.T) {
	c, err := settlement.ParseChoice(" heads ")
	require.NoError(t, err)
	require.Equal(t, settlement.Heads, c)

	_, err = settlement.ParseChoice("edge")
	require.ErrorIs(t, err, settlement.ErrInvalidChoice)
}

// retryingStore descarta a primeira tentativa de cada transação, como o
// Postgres faz num erro de serialização, e registra se há uma transação aberta
type retryingStore struct {
	*ledger.Memory
	inTx     bool
	attempts int
}

var errSerialization = errors.New("could not serialize access")

func (r *retryingStore) WithinTx(ctx context.Context, fn func(settlement.Tx) error) error {
	r.inTx = true
	defer func() { r.inTx = false }()
	r.attempts++
	err := r.Memory.WithinTx(ctx, func(tx settlement.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errSerialization
	})
	if !errors.Is(err, errSerialization) {
		return err
	}
	r.attempts++
	return r.Memory.WithinTx(ctx, fn)
}

type countingOracle struct {
	*oracle.MockOracle
	store    *retryingStore
	requests int
	duringTx bool
}

func (c *countingOracle) RequestRandomness(ctx context.Context, req oracle.Request) (oracle.Ticket, error) {
	c.requests++
	if c.store.inTx {
		c.duringTx = true
	}
	return c.MockOracle.RequestRandomness(ctx, req)
}

func (s *MachineSuite) TestOracleRequestedOnceOutsideTransaction() {
	store := &retryingStore{Memory: s.store}
	orc := &countingOracle{MockOracle: s.orc, store: store}
	m, err := settlement.New(store, orc, nil, zap.NewNop(), settlement.WithClock(s.clock))
	s.Require().NoError(err)

	w, err := m.PlaceBet(s.ctx, settlement.PlaceBetRequest{
		Owner: player, Stake: dec("0.5"), Choice: settlement.Heads, UserRandom: seed, OracleFee: dec("0.001"),
	})
	s.Require().NoError(err)

	s.Equal(2, store.attempts)
	s.Equal(1, orc.requests)
	s.False(orc.duringTx)
	s.Equal([]string{w.Handle}, s.orc.Pending())
	s.equalDec("4.499", s.balance(player))
	s.equalDec("0.975", s.house().Exposure)
}
