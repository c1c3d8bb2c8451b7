package house

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientHouseBalance = errors.New("insufficient house balance")
	ErrFeesExceeded             = errors.New("withdrawal exceeds reserved fees")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInvariant                = errors.New("house ledger invariant violated")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletFrozen      = errors.New("wallet frozen")
	ErrWalletNotFound    = errors.New("wallet not found")
)

// AmountScale é o número de casas decimais das colunas NUMERIC(38,18)
const AmountScale = 18

// FitsScale responde se d cabe em AmountScale casas sem arredondar
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// Ledger é o estado agregado do caixa da casa.
//
// TotalBalance inclui os stakes das apostas pendentes (o dinheiro já entrou).
// ReservedFees é lucro da casa, sacável só pelo operador.
// Exposure é a soma das obrigações das apostas PENDING no pior caso
// (todas ganham): pagamento potencial + taxa da casa de cada uma.
type Ledger struct {
	TotalBalance decimal.Decimal
	ReservedFees decimal.Decimal
	Exposure     decimal.Decimal
	Version      int64
	UpdatedAt    time.Time
}

// Available é o saldo livre para aceitar novas obrigações
func (l Ledger) Available() decimal.Decimal {
	return l.TotalBalance.Sub(l.ReservedFees).Sub(l.Exposure)
}

// CanReserve responde se a casa cobre mais uma obrigação sem violar a solvência
func (l Ledger) CanReserve(exposure decimal.Decimal) bool {
	return l.Available().GreaterThanOrEqual(exposure)
}

// Check valida os invariantes do caixa
func (l Ledger) Check() error {
	switch {
	case l.TotalBalance.IsNegative(), l.ReservedFees.IsNegative(), l.Exposure.IsNegative():
		return fmt.Errorf("%w: negative component (total=%s fees=%s exposure=%s)",
			ErrInvariant, l.TotalBalance, l.ReservedFees, l.Exposure)
	case l.TotalBalance.LessThan(l.ReservedFees):
		return fmt.Errorf("%w: total %s < reserved fees %s", ErrInvariant, l.TotalBalance, l.ReservedFees)
	case l.Available().IsNegative():
		return fmt.Errorf("%w: exposure %s exceeds free balance %s",
			ErrInvariant, l.Exposure, l.TotalBalance.Sub(l.ReservedFees))
	}
	return nil
}

// Accept credita o stake recebido e reserva a exposição da nova aposta.
// Checagem e reserva são uma única operação: ou ambas acontecem ou nenhuma.
func (l *Ledger) Accept(stake, exposure decimal.Decimal) error {
	if !stake.IsPositive() || !exposure.IsPositive() {
		return ErrInvalidAmount
	}
	next := *l
	next.TotalBalance = next.TotalBalance.Add(stake)
	if !next.CanReserve(exposure) {
		return ErrInsufficientHouseBalance
	}
	next.Exposure = next.Exposure.Add(exposure)
	*l = next
	return nil
}

// Settle libera a exposição da aposta, debita o pagamento (zero em caso de perda)
// e credita a taxa da casa em ReservedFees.
func (l *Ledger) Settle(exposure, payout, fee decimal.Decimal) error {
	if payout.IsNegative() || fee.IsNegative() {
		return ErrInvalidAmount
	}
	next := *l
	next.Exposure = next.Exposure.Sub(exposure)
	next.TotalBalance = next.TotalBalance.Sub(payout)
	next.ReservedFees = next.ReservedFees.Add(fee)
	if err := next.Check(); err != nil {
		return err
	}
	*l = next
	return nil
}

// Refund libera a exposição e devolve o stake ao dono, sem taxa
func (l *Ledger) Refund(exposure, stake decimal.Decimal) error {
	next := *l
	next.Exposure = next.Exposure.Sub(exposure)
	next.TotalBalance = next.TotalBalance.Sub(stake)
	if err := next.Check(); err != nil {
		return err
	}
	*l = next
	return nil
}

// Deposit adiciona fundos do operador ao caixa
func (l *Ledger) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() || !FitsScale(amount) {
		return ErrInvalidAmount
	}
	l.TotalBalance = l.TotalBalance.Add(amount)
	return nil
}

// WithdrawFees retira lucro acumulado; nunca toca no saldo comprometido com jogadores
func (l *Ledger) WithdrawFees(amount decimal.Decimal) error {
	if !amount.IsPositive() || !FitsScale(amount) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(l.ReservedFees) {
		return ErrFeesExceeded
	}
	l.TotalBalance = l.TotalBalance.Sub(amount)
	l.ReservedFees = l.ReservedFees.Sub(amount)
	return nil
}

// Wallet é a conta de um jogador. Débitos e créditos acontecem dentro da mesma
// transação que muda o estado da aposta.
type Wallet struct {
	Owner     string
	Balance   decimal.Decimal
	Frozen    bool // bloqueio de compliance: nenhuma movimentação é aceita
	UpdatedAt time.Time
}

// Debit retira fundos da carteira
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if w.Frozen {
		return ErrWalletFrozen
	}
	if w.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit adiciona fundos à carteira
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if w.Frozen {
		return ErrWalletFrozen
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// HouseAccount é a conta usada no diário para movimentos do caixa da casa
const HouseAccount = "house"

type EntryKind string

const (
	EntryHouseDeposit     EntryKind = "HOUSE_DEPOSIT"
	EntryFeeWithdrawal    EntryKind = "FEE_WITHDRAWAL"
	EntryWalletDeposit    EntryKind = "DEPOSIT"
	EntryWalletWithdrawal EntryKind = "WITHDRAWAL"
	EntryStake            EntryKind = "STAKE"
	EntryOracleFee        EntryKind = "ORACLE_FEE"
	EntryPayout           EntryKind = "PAYOUT"
	EntryRefund           EntryKind = "REFUND"
	EntryFeeAccrued       EntryKind = "FEE_ACCRUED"
)

// Entry é uma linha do diário (append-only) de movimentações.
// Amount é positivo para entradas na conta e negativo para saídas.
type Entry struct {
	ID        int64
	Account   string
	Kind      EntryKind
	Amount    decimal.Decimal
	WagerID   int64 // 0 quando não relacionado a aposta
	CreatedAt time.Time
}
