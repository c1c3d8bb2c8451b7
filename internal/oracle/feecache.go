package oracle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// FeeCacheKey é a chave Redis com a taxa corrente do oráculo
const FeeCacheKey = "oracle:fee"

// CachedFee envolve um Oracle e guarda a taxa no Redis com TTL.
// Falhas do Redis não bloqueiam: a consulta cai direto no provedor.
type CachedFee struct {
	Oracle
	Rdb *redis.Client
	TTL time.Duration
}

// NewCachedFee cria o wrapper de cache de taxa
func NewCachedFee(o Oracle, rdb *redis.Client, ttl time.Duration) *CachedFee {
	return &CachedFee{Oracle: o, Rdb: rdb, TTL: ttl}
}

func (c *CachedFee) Fee(ctx context.Context) (decimal.Decimal, error) {
	if c.Rdb != nil {
		// redis.Nil (miss) ou erro de conexão: segue para o provedor
		if val, err := c.Rdb.Get(ctx, FeeCacheKey).Result(); err == nil {
			if fee, perr := decimal.NewFromString(val); perr == nil {
				return fee, nil
			}
		}
	}

	fee, err := c.Oracle.Fee(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if c.Rdb != nil {
		_ = c.Rdb.Set(ctx, FeeCacheKey, fee.String(), c.TTL).Err()
	}
	return fee, nil
}
