package address

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalid indica que o principal informado não é um endereço hex válido
var ErrInvalid = errors.New("invalid address")

// Normalize valida um endereço (0x + 40 hex) e devolve a forma com checksum EIP-55.
// Todo dono de aposta/carteira é armazenado nessa forma canônica.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", ErrInvalid
	}
	return common.HexToAddress(s).Hex(), nil
}

// Equal compara dois endereços ignorando o checksum
func Equal(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
