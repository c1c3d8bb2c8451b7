package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

//go:embed schema.sql
var schema string

// Migrate cria as tabelas (idempotente)
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Postgres implementa settlement.Store. Toda transação usa lock pessimista
// (SELECT ... FOR UPDATE) e é refeita em falha de serialização ou deadlock.
type Postgres struct {
	db         *sql.DB
	maxRetries int
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db, maxRetries: 3} }

const wagerColumns = `id, owner, stake, oracle_fee, potential_payout, house_fee, choice, state,
	oracle_handle, user_random, provider_commitment, result, won, payout, fee,
	created_at, updated_at, closed_at`

func (p *Postgres) WithinTx(ctx context.Context, fn func(settlement.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := p.runTx(ctx, fn)
		if err == nil || attempt >= p.maxRetries || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50*(attempt+1)) * time.Millisecond):
		}
	}
}

func (p *Postgres) runTx(ctx context.Context, fn func(settlement.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) WithinHouseTx(ctx context.Context, fn func(house.Tx) error) error {
	return p.WithinTx(ctx, func(tx settlement.Tx) error { return fn(tx) })
}

// retryable reconhece serialization_failure (40001) e deadlock_detected (40P01)
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *Postgres) House(ctx context.Context) (house.Ledger, error) {
	var l house.Ledger
	err := p.db.QueryRowContext(ctx, `
		SELECT total_balance, reserved_fees, exposure, version, updated_at
		FROM house_ledger WHERE id = 1`).
		Scan(&l.TotalBalance, &l.ReservedFees, &l.Exposure, &l.Version, &l.UpdatedAt)
	return l, err
}

func (p *Postgres) Wallet(ctx context.Context, owner string) (house.Wallet, error) {
	var w house.Wallet
	err := p.db.QueryRowContext(ctx, `SELECT owner, balance, frozen, updated_at FROM wallets WHERE owner = $1`, owner).
		Scan(&w.Owner, &w.Balance, &w.Frozen, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return house.Wallet{}, house.ErrWalletNotFound
	}
	return w, err
}

func (p *Postgres) Entries(ctx context.Context, account string, limit int) ([]house.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account, kind, amount, wager_id, created_at
		FROM ledger_entries WHERE account = $1
		ORDER BY id DESC LIMIT $2`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []house.Entry
	for rows.Next() {
		var (
			e       house.Entry
			kind    string
			wagerID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Account, &kind, &e.Amount, &wagerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = house.EntryKind(kind)
		e.WagerID = wagerID.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Wager(ctx context.Context, id int64) (settlement.Wager, error) {
	w, err := scanWager(p.db.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1`, id))
	if err != nil {
		return settlement.Wager{}, err
	}
	return *w, nil
}

func (p *Postgres) WagersByOwner(ctx context.Context, owner string) ([]settlement.Wager, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (p *Postgres) UnpublishedEvents(ctx context.Context, limit int) ([]settlement.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, topic, key, payload, created_at
		FROM wager_events WHERE published_at IS NULL
		ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.Event
	for rows.Next() {
		var e settlement.Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE wager_events SET published_at = NOW() WHERE id = ANY($1::uuid[]) AND published_at IS NULL`,
		pq.Array(strs))
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockHouse(ctx context.Context) (*house.Ledger, error) {
	var l house.Ledger
	err := t.tx.QueryRowContext(ctx, `
		SELECT total_balance, reserved_fees, exposure, version, updated_at
		FROM house_ledger WHERE id = 1 FOR UPDATE`).
		Scan(&l.TotalBalance, &l.ReservedFees, &l.Exposure, &l.Version, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) SaveHouse(ctx context.Context, l *house.Ledger) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE house_ledger
		SET total_balance = $1, reserved_fees = $2, exposure = $3, version = version + 1, updated_at = $4
		WHERE id = 1`,
		l.TotalBalance, l.ReservedFees, l.Exposure, l.UpdatedAt)
	if err == nil {
		l.Version++
	}
	return err
}

func (t *pgTx) LockWallet(ctx context.Context, owner string) (*house.Wallet, error) {
	var w house.Wallet
	err := t.tx.QueryRowContext(ctx, `SELECT owner, balance, frozen, updated_at FROM wallets WHERE owner = $1 FOR UPDATE`, owner).
		Scan(&w.Owner, &w.Balance, &w.Frozen, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, house.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// OpenWallet insere a linha (sem sobrescrever) e então trava. Duas transações
// criando a mesma carteira se serializam no INSERT e a segunda lê o saldo
// já commitado pela primeira.
func (t *pgTx) OpenWallet(ctx context.Context, owner string) (*house.Wallet, error) {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallets (owner, balance, frozen, updated_at) VALUES ($1, 0, FALSE, NOW())
		ON CONFLICT (owner) DO NOTHING`, owner); err != nil {
		return nil, err
	}
	return t.LockWallet(ctx, owner)
}

func (t *pgTx) SaveWallet(ctx context.Context, w *house.Wallet) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE wallets SET balance = $2, frozen = $3, updated_at = $4 WHERE owner = $1`,
		w.Owner, w.Balance, w.Frozen, w.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return house.ErrWalletNotFound
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e house.Entry) error {
	wagerID := sql.NullInt64{Int64: e.WagerID, Valid: e.WagerID != 0}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account, kind, amount, wager_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Account, string(e.Kind), e.Amount, wagerID, e.CreatedAt)
	return err
}

func (t *pgTx) InsertWager(ctx context.Context, w *settlement.Wager) (int64, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO wagers (owner, stake, oracle_fee, potential_payout, house_fee, choice, state,
			oracle_handle, user_random, provider_commitment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		w.Owner, w.Stake, w.OracleFee, w.PotentialPayout, w.HouseFee, string(w.Choice), string(w.State),
		w.Handle, w.UserRandom.Bytes(), w.ProviderCommitment.Bytes(), w.CreatedAt, w.UpdatedAt,
	).Scan(&w.ID)
	if uniqueViolation(err) {
		return 0, settlement.ErrDuplicateHandle
	}
	return w.ID, err
}

func (t *pgTx) LockWager(ctx context.Context, id int64) (*settlement.Wager, error) {
	return scanWager(t.tx.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LockWagerByHandle(ctx context.Context, handle string) (*settlement.Wager, error) {
	return scanWager(t.tx.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE oracle_handle = $1 FOR UPDATE`, handle))
}

func (t *pgTx) UpdateWager(ctx context.Context, w *settlement.Wager) error {
	var (
		result sql.NullString
		won    sql.NullBool
		payout decimal.NullDecimal
		fee    decimal.NullDecimal
	)
	if o := w.Outcome; o != nil {
		result = sql.NullString{String: string(o.Result), Valid: true}
		won = sql.NullBool{Bool: o.Won, Valid: true}
		payout = decimal.NewNullDecimal(o.Payout)
		fee = decimal.NewNullDecimal(o.Fee)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE wagers
		SET state = $2, result = $3, won = $4, payout = $5, fee = $6, updated_at = $7, closed_at = $8
		WHERE id = $1`,
		w.ID, string(w.State), result, won, payout, fee, w.UpdatedAt, w.ClosedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrWagerNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e settlement.Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wager_events (id, topic, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Topic, e.Key, e.Payload, e.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(row rowScanner) (*settlement.Wager, error) {
	var (
		w                  settlement.Wager
		choice, state      string
		userRandom, commit []byte
		result             sql.NullString
		won                sql.NullBool
		payout, fee        decimal.NullDecimal
		closedAt           sql.NullTime
	)
	err := row.Scan(&w.ID, &w.Owner, &w.Stake, &w.OracleFee, &w.PotentialPayout, &w.HouseFee, &choice, &state,
		&w.Handle, &userRandom, &commit, &result, &won, &payout, &fee,
		&w.CreatedAt, &w.UpdatedAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrWagerNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Choice = settlement.Choice(choice)
	w.State = settlement.State(state)
	w.UserRandom = common.BytesToHash(userRandom)
	w.ProviderCommitment = common.BytesToHash(commit)
	if result.Valid {
		w.Outcome = &settlement.Outcome{
			Result: settlement.Choice(result.String),
			Won:    won.Bool,
			Payout: payout.Decimal,
			Fee:    fee.Decimal,
		}
	}
	if closedAt.Valid {
		t := closedAt.Time
		w.ClosedAt = &t
	}
	return &w, nil
}
