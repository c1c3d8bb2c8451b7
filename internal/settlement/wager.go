package settlement

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
)

type Choice string

const (
	Heads Choice = "HEADS"
	Tails Choice = "TAILS"
)

// ParseChoice aceita "heads"/"tails" em qualquer caixa
func ParseChoice(s string) (Choice, error) {
	switch Choice(strings.ToUpper(strings.TrimSpace(s))) {
	case Heads:
		return Heads, nil
	case Tails:
		return Tails, nil
	}
	return "", ErrInvalidChoice
}

func (c Choice) Valid() bool { return c == Heads || c == Tails }

type State string

const (
	StatePending   State = "PENDING"
	StateSettled   State = "SETTLED"
	StateCancelled State = "CANCELLED"
)

// Terminal responde se o estado não aceita mais transições
func (s State) Terminal() bool { return s == StateSettled || s == StateCancelled }

// Outcome existe só em apostas SETTLED. Payout é zero quando Won == false.
type Outcome struct {
	Result Choice
	Won    bool
	Payout decimal.Decimal
	Fee    decimal.Decimal
}

// Wager é uma aposta e seu ciclo de vida.
// PotentialPayout e HouseFee são fixados no aceite, então mudar as regras
// depois não altera obrigações já reservadas.
type Wager struct {
	ID              int64
	Owner           string
	Stake           decimal.Decimal
	OracleFee       decimal.Decimal
	PotentialPayout decimal.Decimal
	HouseFee        decimal.Decimal
	Choice          Choice
	State           State

	Handle             string
	UserRandom         common.Hash
	ProviderCommitment common.Hash

	Outcome   *Outcome
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Exposure é o valor reservado no caixa enquanto a aposta está PENDING
func (w Wager) Exposure() decimal.Decimal {
	return w.PotentialPayout.Add(w.HouseFee)
}

// ResultOf mapeia o valor aleatório para a face da moeda: par = HEADS, ímpar = TAILS
func ResultOf(v oracle.RandomValue) Choice {
	if oracle.IsOdd(v) {
		return Tails
	}
	return Heads
}
