package settlement

import (
	"errors"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

// Kind classifica uma rejeição. Os handlers HTTP mapeiam Kind para status.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindResource     Kind = "resource"
	KindIdempotency  Kind = "idempotency"
	KindTimeout      Kind = "timeout"
	KindUnauthorized Kind = "unauthorized"
	KindTransfer     Kind = "transfer"
	KindNotFound     Kind = "not_found"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

var (
	ErrInvalidOwner      = errors.New("invalid owner address")
	ErrInvalidChoice     = errors.New("choice must be HEADS or TAILS")
	ErrStakeOutOfRange   = errors.New("stake out of range")
	ErrAmountPrecision   = errors.New("amount has too many decimal places")
	ErrZeroSeed          = errors.New("user random seed must be non-zero")
	ErrOracleFeeTooLow   = errors.New("oracle fee below current fee")
	ErrUnknownHandle     = errors.New("unknown oracle handle")
	ErrBadRevelation     = errors.New("revelation does not match provider commitment")
	ErrCancelTooEarly    = errors.New("cancel timeout has not elapsed")
	ErrNotOwner          = errors.New("caller is not the wager owner")
	ErrWagerNotFound     = errors.New("wager not found")
	ErrDuplicateHandle   = errors.New("oracle handle already bound to a wager")
	ErrOracleUnavailable = errors.New("oracle unavailable")

	ErrInsufficientHouseBalance = house.ErrInsufficientHouseBalance
	ErrNotPending               = oracle.ErrAlreadyResolved
)

// Error é a rejeição tipada devolvida pela máquina de liquidação.
// Toda rejeição é atômica: nenhum estado foi alterado.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func fail(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf devolve o Kind de err, ou KindInternal se não for uma rejeição tipada
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf detalha uma rejeição de resolução (vazio para as demais)
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrUnknownHandle):
		return oracleapi.ReasonUnknownHandle
	case errors.Is(err, ErrNotPending):
		return oracleapi.ReasonNotPending
	case errors.Is(err, ErrBadRevelation):
		return oracleapi.ReasonBadRevelation
	}
	return ""
}

// classify converte erros de fundos vindos do caixa/carteira
func classify(op string, err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, house.ErrInsufficientHouseBalance):
		return fail(op, KindResource, err)
	case errors.Is(err, house.ErrInsufficientFunds),
		errors.Is(err, house.ErrWalletFrozen),
		errors.Is(err, house.ErrWalletNotFound):
		return fail(op, KindTransfer, err)
	case errors.Is(err, house.ErrInvalidAmount):
		return fail(op, KindValidation, err)
	}
	return fail(op, KindInternal, err)
}
