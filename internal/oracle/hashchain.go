package oracle

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashChain deriva de forma determinística o segredo do provedor para cada
// número de sequência: keccak256(seed || uint64 big-endian(n)).
// Usado pelo mock e pelo oracle-simulator, o que torna os resultados reproduzíveis.
type HashChain struct {
	Seed common.Hash
}

// NewHashChain cria a cadeia a partir de uma semente textual
func NewHashChain(seed string) HashChain {
	return HashChain{Seed: crypto.Keccak256Hash([]byte(seed))}
}

// At devolve o segredo do provedor para a sequência n
func (c HashChain) At(n uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return crypto.Keccak256Hash(c.Seed.Bytes(), buf[:])
}
