// Package ledger contém as implementações de settlement.Store: Postgres
// (produção) e Memory (testes e desenvolvimento local).
package ledger

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

// Memory é um Store em memória com o mesmo contrato transacional do Postgres.
// Um único mutex serializa as transações; cada uma trabalha sobre uma cópia
// do estado, promovida só no commit.
type Memory struct {
	mu sync.Mutex
	st memState
}

type memState struct {
	house     house.Ledger
	wallets   map[string]house.Wallet
	entries   []house.Entry
	wagers    map[int64]settlement.Wager
	handles   map[string]int64
	events    []memEvent
	lastWager int64
	lastEntry int64
}

type memEvent struct {
	settlement.Event
	published bool
}

func NewMemory() *Memory {
	return &Memory{st: memState{
		wallets: make(map[string]house.Wallet),
		wagers:  make(map[int64]settlement.Wager),
		handles: make(map[string]int64),
	}}
}

func (s memState) clone() memState {
	c := s
	c.wallets = maps.Clone(s.wallets)
	c.wagers = maps.Clone(s.wagers)
	c.handles = maps.Clone(s.handles)
	c.entries = slices.Clone(s.entries)
	c.events = slices.Clone(s.events)
	return c
}

func (m *Memory) WithinTx(ctx context.Context, fn func(settlement.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(&memTx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *Memory) WithinHouseTx(ctx context.Context, fn func(house.Tx) error) error {
	return m.WithinTx(ctx, func(tx settlement.Tx) error { return fn(tx) })
}

func (m *Memory) House(ctx context.Context) (house.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.house, nil
}

func (m *Memory) Wallet(ctx context.Context, owner string) (house.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.st.wallets[owner]
	if !ok {
		return house.Wallet{}, house.ErrWalletNotFound
	}
	return w, nil
}

// Entries devolve as movimentações mais recentes primeiro
func (m *Memory) Entries(ctx context.Context, account string, limit int) ([]house.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []house.Entry
	for i := len(m.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.st.entries[i].Account == account {
			out = append(out, m.st.entries[i])
		}
	}
	return out, nil
}

func (m *Memory) Wager(ctx context.Context, id int64) (settlement.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.st.wagers[id]
	if !ok {
		return settlement.Wager{}, settlement.ErrWagerNotFound
	}
	return w, nil
}

func (m *Memory) WagersByOwner(ctx context.Context, owner string) ([]settlement.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []settlement.Wager
	for _, w := range m.st.wagers {
		if w.Owner == owner {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UnpublishedEvents(ctx context.Context, limit int) ([]settlement.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []settlement.Event
	for _, e := range m.st.events {
		if len(out) == limit {
			break
		}
		if !e.published {
			out = append(out, e.Event)
		}
	}
	return out, nil
}

func (m *Memory) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range m.st.events {
		if _, ok := set[m.st.events[i].ID]; ok {
			m.st.events[i].published = true
		}
	}
	return nil
}

// memTx opera sobre a cópia de trabalho; o mutex do Memory já está travado
type memTx struct {
	st *memState
}

func (t *memTx) LockHouse(ctx context.Context) (*house.Ledger, error) {
	l := t.st.house
	return &l, nil
}

func (t *memTx) SaveHouse(ctx context.Context, l *house.Ledger) error {
	l.Version++
	t.st.house = *l
	return nil
}

func (t *memTx) LockWallet(ctx context.Context, owner string) (*house.Wallet, error) {
	w, ok := t.st.wallets[owner]
	if !ok {
		return nil, house.ErrWalletNotFound
	}
	return &w, nil
}

func (t *memTx) OpenWallet(ctx context.Context, owner string) (*house.Wallet, error) {
	if _, ok := t.st.wallets[owner]; !ok {
		t.st.wallets[owner] = house.Wallet{Owner: owner, Balance: decimal.Zero}
	}
	return t.LockWallet(ctx, owner)
}

func (t *memTx) SaveWallet(ctx context.Context, w *house.Wallet) error {
	if _, ok := t.st.wallets[w.Owner]; !ok {
		return house.ErrWalletNotFound
	}
	t.st.wallets[w.Owner] = *w
	return nil
}

func (t *memTx) AppendEntry(ctx context.Context, e house.Entry) error {
	t.st.lastEntry++
	e.ID = t.st.lastEntry
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *memTx) InsertWager(ctx context.Context, w *settlement.Wager) (int64, error) {
	if _, dup := t.st.handles[w.Handle]; dup {
		return 0, settlement.ErrDuplicateHandle
	}
	t.st.lastWager++
	w.ID = t.st.lastWager
	t.st.wagers[w.ID] = *w
	t.st.handles[w.Handle] = w.ID
	return w.ID, nil
}

func (t *memTx) LockWager(ctx context.Context, id int64) (*settlement.Wager, error) {
	w, ok := t.st.wagers[id]
	if !ok {
		return nil, settlement.ErrWagerNotFound
	}
	return &w, nil
}

func (t *memTx) LockWagerByHandle(ctx context.Context, handle string) (*settlement.Wager, error) {
	id, ok := t.st.handles[handle]
	if !ok {
		return nil, settlement.ErrWagerNotFound
	}
	return t.LockWager(ctx, id)
}

func (t *memTx) UpdateWager(ctx context.Context, w *settlement.Wager) error {
	if _, ok := t.st.wagers[w.ID]; !ok {
		return settlement.ErrWagerNotFound
	}
	t.st.wagers[w.ID] = *w
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, e settlement.Event) error {
	t.st.events = append(t.st.events, memEvent{Event: e})
	return nil
}
