package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de evento (campo "type" em todos os payloads)
const (
	TypeWagerPlaced    = "WAGER_PLACED"
	TypeWagerSettled   = "WAGER_SETTLED"
	TypeWagerCancelled = "WAGER_CANCELLED"
)

// Header contém os campos comuns a todos os eventos de aposta.
// Consumidores genéricos (ex.: wager-feed) decodificam só o header.
type Header struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	WagerID int64     `json:"wager_id"`
	Owner   string    `json:"owner"`
	Ts      time.Time `json:"ts"`
}

// WagerPlaced é emitido quando uma aposta é aceita e a aleatoriedade foi solicitada ao oráculo.
type WagerPlaced struct {
	Header
	Stake     decimal.Decimal `json:"stake"`
	OracleFee decimal.Decimal `json:"oracle_fee"`
	Choice    string          `json:"choice"` // HEADS | TAILS
	Handle    string          `json:"handle"` // correlação com o pedido do oráculo
}

// WagerSettled é emitido quando a aposta é resolvida (ganho ou perda).
type WagerSettled struct {
	Header
	Choice string          `json:"choice"`
	Result string          `json:"result"`
	Won    bool            `json:"won"`
	Payout decimal.Decimal `json:"payout"`
	Fee    decimal.Decimal `json:"fee"`
}

// WagerCancelled é emitido quando o dono cancela uma aposta após o timeout do oráculo.
type WagerCancelled struct {
	Header
	Refund decimal.Decimal `json:"refund"`
}
