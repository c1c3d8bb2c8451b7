package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
)

var hundred = decimal.NewFromInt(100)

// Rules são os parâmetros de negócio do jogo
type Rules struct {
	MinBet           decimal.Decimal
	MaxBet           decimal.Decimal
	PayoutMultiplier decimal.Decimal // stake devolvido + prêmio (1.9 = stake + 90%)
	FeePercent       decimal.Decimal // taxa da casa sobre o stake, cobrada em toda resolução
	CancelTimeout    time.Duration
}

func DefaultRules() Rules {
	return Rules{
		MinBet:           decimal.RequireFromString("0.01"),
		MaxBet:           decimal.RequireFromString("1.0"),
		PayoutMultiplier: decimal.RequireFromString("1.9"),
		FeePercent:       decimal.NewFromInt(5),
		CancelTimeout:    time.Hour,
	}
}

// Validate checa a consistência dos parâmetros
func (r Rules) Validate() error {
	switch {
	case !r.MinBet.IsPositive():
		return errors.New("min bet must be positive")
	case r.MaxBet.LessThan(r.MinBet):
		return fmt.Errorf("max bet %s below min bet %s", r.MaxBet, r.MinBet)
	case r.PayoutMultiplier.LessThanOrEqual(decimal.NewFromInt(1)):
		return errors.New("payout multiplier must be greater than 1")
	case r.FeePercent.IsNegative(), r.FeePercent.GreaterThanOrEqual(hundred):
		return errors.New("fee percent must be in [0, 100)")
	case r.CancelTimeout <= 0:
		return errors.New("cancel timeout must be positive")
	}
	return nil
}

func (r Rules) PotentialPayout(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(r.PayoutMultiplier)
}

// HouseFee é exato: Shift não arredonda como Div
func (r Rules) HouseFee(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(r.FeePercent).Shift(-2)
}

// CheckStake valida stake ∈ [MinBet, MaxBet] e que stake, pagamento e taxa
// cabem na escala do ledger sem arredondamento
func (r Rules) CheckStake(stake decimal.Decimal) error {
	if stake.LessThan(r.MinBet) || stake.GreaterThan(r.MaxBet) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrStakeOutOfRange, stake, r.MinBet, r.MaxBet)
	}
	if !house.FitsScale(stake) || !house.FitsScale(r.PotentialPayout(stake)) || !house.FitsScale(r.HouseFee(stake)) {
		return fmt.Errorf("%w: %s", ErrAmountPrecision, stake)
	}
	return nil
}
