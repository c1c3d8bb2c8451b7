package oracleapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Contrato HTTP entre o adapter de oráculo e o oracle-simulator (ou provedor real).

// RequestBody é o payload de POST /v1/requests
type RequestBody struct {
	Fee            decimal.Decimal `json:"fee"`
	UserCommitment common.Hash     `json:"user_commitment"`
	CallbackURL    string          `json:"callback_url,omitempty"` // preenchido só no modo push
}

// TicketResponse é a resposta de POST /v1/requests
type TicketResponse struct {
	Handle             string      `json:"handle"`
	ProviderCommitment common.Hash `json:"provider_commitment"`
}

// Revelation é a resposta de GET /v1/requests/{handle}/revelation e
// também o corpo do callback enviado no modo push.
type Revelation struct {
	Handle         string      `json:"handle"`
	ProviderRandom common.Hash `json:"provider_random"`
}

// Motivos de rejeição de uma revelação, devolvidos no campo "reason" do erro
// 409 do POST /resolve. Só ReasonNotPending encerra a entrega.
const (
	ReasonNotPending    = "not_pending"
	ReasonUnknownHandle = "unknown_handle"
	ReasonBadRevelation = "bad_revelation"
)

// FeeResponse é a resposta de GET /v1/fee
type FeeResponse struct {
	Fee decimal.Decimal `json:"fee"`
}
