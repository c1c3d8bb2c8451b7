package house

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/address"
)

// ErrNotOperator indica chamada de operação restrita ao operador
var ErrNotOperator = errors.New("caller is not the operator")

// Service expõe as operações de fundos fora do ciclo de apostas:
// caixa do operador e carteiras dos jogadores.
type Service struct {
	store    Store
	operator string
	clock    quartz.Clock
	log      *zap.Logger
}

// NewService cria o serviço. operator é o endereço autorizado a movimentar o caixa.
func NewService(store Store, operator string, clock quartz.Clock, log *zap.Logger) (*Service, error) {
	op, err := address.Normalize(operator)
	if err != nil {
		return nil, fmt.Errorf("operator address: %w", err)
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{store: store, operator: op, clock: clock, log: log}, nil
}

// Operator retorna o endereço do operador
func (s *Service) Operator() string { return s.operator }

func (s *Service) authorize(caller string) error {
	if !address.Equal(caller, s.operator) {
		return ErrNotOperator
	}
	return nil
}

// House retorna o estado atual do caixa
func (s *Service) House(ctx context.Context) (Ledger, error) {
	return s.store.House(ctx)
}

// DepositOperatorFunds credita fundos do operador no caixa
func (s *Service) DepositOperatorFunds(ctx context.Context, caller string, amount decimal.Decimal) (Ledger, error) {
	if err := s.authorize(caller); err != nil {
		return Ledger{}, err
	}
	var out Ledger
	err := s.store.WithinHouseTx(ctx, func(tx Tx) error {
		l, err := tx.LockHouse(ctx)
		if err != nil {
			return err
		}
		if err := l.Deposit(amount); err != nil {
			return err
		}
		l.UpdatedAt = s.clock.Now()
		if err := tx.SaveHouse(ctx, l); err != nil {
			return err
		}
		out = *l
		return tx.AppendEntry(ctx, Entry{Account: HouseAccount, Kind: EntryHouseDeposit, Amount: amount, CreatedAt: l.UpdatedAt})
	})
	if err != nil {
		return Ledger{}, err
	}
	s.log.Info("house deposit", zap.String("amount", amount.String()), zap.String("total", out.TotalBalance.String()))
	return out, nil
}

// WithdrawFees retira lucro acumulado, limitado a ReservedFees
func (s *Service) WithdrawFees(ctx context.Context, caller string, amount decimal.Decimal) (Ledger, error) {
	if err := s.authorize(caller); err != nil {
		return Ledger{}, err
	}
	var out Ledger
	err := s.store.WithinHouseTx(ctx, func(tx Tx) error {
		l, err := tx.LockHouse(ctx)
		if err != nil {
			return err
		}
		if err := l.WithdrawFees(amount); err != nil {
			return err
		}
		l.UpdatedAt = s.clock.Now()
		if err := tx.SaveHouse(ctx, l); err != nil {
			return err
		}
		out = *l
		return tx.AppendEntry(ctx, Entry{Account: HouseAccount, Kind: EntryFeeWithdrawal, Amount: amount.Neg(), CreatedAt: l.UpdatedAt})
	})
	if err != nil {
		return Ledger{}, err
	}
	s.log.Info("fees withdrawn", zap.String("amount", amount.String()), zap.String("reserved_fees", out.ReservedFees.String()))
	return out, nil
}

// Wallet retorna a carteira do dono
func (s *Service) Wallet(ctx context.Context, owner string) (Wallet, error) {
	o, err := address.Normalize(owner)
	if err != nil {
		return Wallet{}, err
	}
	return s.store.Wallet(ctx, o)
}

// DepositWallet credita fundos na carteira do jogador, criando-a se não existir
func (s *Service) DepositWallet(ctx context.Context, owner string, amount decimal.Decimal) (Wallet, error) {
	o, err := address.Normalize(owner)
	if err != nil {
		return Wallet{}, err
	}
	if !amount.IsPositive() || !FitsScale(amount) {
		return Wallet{}, ErrInvalidAmount
	}
	var out Wallet
	err = s.store.WithinHouseTx(ctx, func(tx Tx) error {
		w, err := tx.OpenWallet(ctx, o)
		if err != nil {
			return err
		}
		if err := w.Credit(amount); err != nil {
			return err
		}
		w.UpdatedAt = s.clock.Now()
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		out = *w
		return tx.AppendEntry(ctx, Entry{Account: o, Kind: EntryWalletDeposit, Amount: amount, CreatedAt: w.UpdatedAt})
	})
	return out, err
}

// WithdrawWallet retira fundos da carteira; só o próprio dono pode sacar
func (s *Service) WithdrawWallet(ctx context.Context, caller string, amount decimal.Decimal) (Wallet, error) {
	o, err := address.Normalize(caller)
	if err != nil {
		return Wallet{}, err
	}
	if !amount.IsPositive() || !FitsScale(amount) {
		return Wallet{}, ErrInvalidAmount
	}
	var out Wallet
	err = s.store.WithinHouseTx(ctx, func(tx Tx) error {
		w, err := tx.LockWallet(ctx, o)
		if err != nil {
			return err
		}
		if err := w.Debit(amount); err != nil {
			return err
		}
		w.UpdatedAt = s.clock.Now()
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		out = *w
		return tx.AppendEntry(ctx, Entry{Account: o, Kind: EntryWalletWithdrawal, Amount: amount.Neg(), CreatedAt: w.UpdatedAt})
	})
	return out, err
}

// FreezeWallet aplica ou remove o bloqueio de compliance (operador)
func (s *Service) FreezeWallet(ctx context.Context, caller, owner string, frozen bool) (Wallet, error) {
	if err := s.authorize(caller); err != nil {
		return Wallet{}, err
	}
	o, err := address.Normalize(owner)
	if err != nil {
		return Wallet{}, err
	}
	var out Wallet
	err = s.store.WithinHouseTx(ctx, func(tx Tx) error {
		w, err := tx.LockWallet(ctx, o)
		if err != nil {
			return err
		}
		w.Frozen = frozen
		w.UpdatedAt = s.clock.Now()
		out = *w
		return tx.SaveWallet(ctx, w)
	})
	if err == nil {
		s.log.Info("wallet freeze changed", zap.String("owner", o), zap.Bool("frozen", frozen))
	}
	return out, err
}

// Entries retorna as últimas movimentações de uma conta
func (s *Service) Entries(ctx context.Context, account string, limit int) ([]Entry, error) {
	if account != HouseAccount {
		o, err := address.Normalize(account)
		if err != nil {
			return nil, err
		}
		account = o
	}
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	return s.store.Entries(ctx, account, limit)
}
