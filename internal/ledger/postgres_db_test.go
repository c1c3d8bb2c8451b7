package ledger

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

const testOperator = "0x000000000000000000000000000000000000dEaD"

// openTestPostgres usa o banco de COINFLIP_TEST_POSTGRES_DSN, recriando o
// estado a cada teste. Sem a variável os testes são pulados.
func openTestPostgres(t *testing.T) (*sql.DB, *Postgres) {
	t.Helper()
	dsn := os.Getenv("COINFLIP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COINFLIP_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE wager_events, ledger_entries, wagers, wallets RESTART IDENTITY`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE house_ledger SET total_balance = 0, reserved_fees = 0, exposure = 0, version = 0`)
	require.NoError(t, err)
	return db, NewPostgres(db)
}

func pgFunds(t *testing.T, store *Postgres) *house.Service {
	t.Helper()
	svc, err := house.NewService(store, testOperator, quartz.NewReal(), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestPostgresConcurrentFirstDeposits(t *testing.T) {
	_, store := openTestPostgres(t)
	svc := pgFunds(t, store)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.DepositWallet(ctx, owner, decimal.NewFromInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := store.Wallet(ctx, owner)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(n).Equal(w.Balance), "balance %s", w.Balance)
	entries, err := store.Entries(ctx, owner, 100)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestPostgresSaveWalletRequiresExistingRow(t *testing.T) {
	_, store := openTestPostgres(t)
	err := store.WithinHouseTx(context.Background(), func(tx house.Tx) error {
		return tx.SaveWallet(context.Background(), &house.Wallet{Owner: owner, Balance: decimal.NewFromInt(5)})
	})
	assert.ErrorIs(t, err, house.ErrWalletNotFound)
}

func TestPostgresSchemaRejectsInsolventHouse(t *testing.T) {
	db, _ := openTestPostgres(t)
	_, err := db.Exec(`UPDATE house_ledger SET total_balance = 1, exposure = 2`)
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr), "err = %v", err)
	assert.Equal(t, pq.ErrorCode("23514"), pqErr.Code)
}

func TestPostgresWagerCycle(t *testing.T) {
	_, store := openTestPostgres(t)
	svc := pgFunds(t, store)
	ctx := context.Background()

	_, err := svc.DepositOperatorFunds(ctx, testOperator, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = svc.DepositWallet(ctx, owner, decimal.NewFromInt(5))
	require.NoError(t, err)

	orc := oracle.NewMockOracle("pg", decimal.RequireFromString("0.001"))
	m, err := settlement.New(store, orc, nil, zap.NewNop())
	require.NoError(t, err)

	w, err := m.PlaceBet(ctx, settlement.PlaceBetRequest{
		Owner: owner, Stake: decimal.NewFromInt(1), Choice: settlement.Heads,
		UserRandom: common.HexToHash("0xc0ffee"), OracleFee: decimal.RequireFromString("0.001"),
	})
	require.NoError(t, err)

	got, err := store.Wager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatePending, got.State)
	assert.Equal(t, w.Handle, got.Handle)

	settled, err := m.Resolve(ctx, w.Handle, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.True(t, settled.Outcome.Won)

	_, err = m.Resolve(ctx, w.Handle, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, settlement.ErrNotPending)

	l, err := store.House(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Check())
	assert.True(t, l.Exposure.IsZero())
	// 10 + 1 de stake - 1.9 de pagamento; a taxa fica dentro do total
	assert.True(t, decimal.RequireFromString("9.1").Equal(l.TotalBalance), "total %s", l.TotalBalance)
	assert.True(t, decimal.RequireFromString("0.05").Equal(l.ReservedFees), "fees %s", l.ReservedFees)

	evs, err := store.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.NoError(t, store.MarkPublished(ctx, []uuid.UUID{evs[0].ID, evs[1].ID}))
	evs, err = store.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestPostgresConcurrentPlaceBetNeverOvercommits(t *testing.T) {
	_, store := openTestPostgres(t)
	svc := pgFunds(t, store)
	ctx := context.Background()

	_, err := svc.DepositOperatorFunds(ctx, testOperator, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = svc.DepositWallet(ctx, owner, decimal.NewFromInt(50))
	require.NoError(t, err)
	m, err := settlement.New(store, oracle.NewMockOracle("pg", decimal.Zero), nil, zap.NewNop())
	require.NoError(t, err)

	const attempts = 30
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.PlaceBet(ctx, settlement.PlaceBetRequest{
				Owner: owner, Stake: decimal.RequireFromString("0.5"), Choice: settlement.Heads,
				UserRandom: common.HexToHash("0xc0ffee"), OracleFee: decimal.Zero,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.Equal(t, settlement.KindResource, settlement.KindOf(err), err.Error())
		}()
	}
	wg.Wait()

	// cada aposta aceita consome 0.975 - 0.5 do saldo livre de 10
	assert.Equal(t, 21, accepted)
	l, err := store.House(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Check())
}
