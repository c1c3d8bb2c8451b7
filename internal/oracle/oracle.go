// Package oracle é a fronteira com o provedor de aleatoriedade verificável.
//
// O provedor segue um esquema commit-reveal: ao receber um pedido ele devolve
// um handle e o compromisso keccak256(providerRandom); mais tarde revela
// providerRandom. O valor aleatório final combina a parte do provedor com a
// semente do usuário, de modo que nenhum dos lados escolhe o resultado sozinho.
//
// Duas realizações de entrega são suportadas: push (o provedor chama um
// callback) e pull (alguém busca a revelação e a submete). A máquina de
// liquidação não sabe qual está em uso.
package oracle

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var (
	ErrUnavailable   = errors.New("oracle unavailable")
	ErrUnknownHandle = errors.New("oracle: unknown handle")
	ErrNotRevealed   = errors.New("oracle: revelation not available yet")
	ErrFeeTooLow     = errors.New("oracle: fee below provider fee")

	// ErrAlreadyResolved é a resposta do consumidor a uma revelação cuja aposta
	// já foi fechada; a entrega conta como feita.
	ErrAlreadyResolved = errors.New("wager is not pending")
)

// RandomValue é o valor de 256 bits produzido para uma aposta
type RandomValue = common.Hash

// Request é o pedido de aleatoriedade enviado junto com a taxa
type Request struct {
	Fee            decimal.Decimal
	UserCommitment common.Hash
}

// Ticket é a resposta síncrona de um pedido
type Ticket struct {
	Handle             string
	ProviderCommitment common.Hash
}

// Revelation é a prova entregue pelo provedor para um handle
type Revelation struct {
	Handle         string
	ProviderRandom common.Hash
}

// Oracle é a capacidade mínima exigida pela máquina de liquidação:
// o handle volta de forma síncrona ou a chamada falha.
type Oracle interface {
	Fee(ctx context.Context) (decimal.Decimal, error)
	RequestRandomness(ctx context.Context, req Request) (Ticket, error)
}

// Revealer busca a revelação de um handle (modo pull)
type Revealer interface {
	FetchRevelation(ctx context.Context, handle string) (Revelation, error)
}

// Commit calcula o compromisso keccak256 de um segredo de 32 bytes
func Commit(secret common.Hash) common.Hash {
	return crypto.Keccak256Hash(secret.Bytes())
}

// Verify confere a revelação contra o compromisso registrado no pedido
func Verify(providerCommitment common.Hash, rev Revelation) bool {
	return Commit(rev.ProviderRandom) == providerCommitment
}

// Combine produz o valor aleatório final a partir das duas partes
func Combine(providerRandom, userRandom common.Hash) RandomValue {
	return crypto.Keccak256Hash(providerRandom.Bytes(), userRandom.Bytes())
}

// IsOdd interpreta o valor como inteiro big-endian sem sinal e devolve value mod 2 == 1
func IsOdd(v RandomValue) bool {
	return v[common.HashLength-1]&1 == 1
}
