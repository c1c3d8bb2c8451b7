package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

type WagerResponse struct {
	ID                 int64            `json:"id"`
	Owner              string           `json:"owner"`
	Stake              decimal.Decimal  `json:"stake"`
	OracleFee          decimal.Decimal  `json:"oracle_fee"`
	PotentialPayout    decimal.Decimal  `json:"potential_payout"`
	HouseFee           decimal.Decimal  `json:"house_fee"`
	Choice             string           `json:"choice"`
	State              string           `json:"state"`
	Handle             string           `json:"handle"`
	UserRandom         string           `json:"user_random"`
	ProviderCommitment string           `json:"provider_commitment"`
	Result             string           `json:"result,omitempty"`
	Won                *bool            `json:"won,omitempty"`
	Payout             *decimal.Decimal `json:"payout,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
}

func FromWager(w settlement.Wager) WagerResponse {
	out := WagerResponse{
		ID:                 w.ID,
		Owner:              w.Owner,
		Stake:              w.Stake,
		OracleFee:          w.OracleFee,
		PotentialPayout:    w.PotentialPayout,
		HouseFee:           w.HouseFee,
		Choice:             string(w.Choice),
		State:              string(w.State),
		Handle:             w.Handle,
		UserRandom:         w.UserRandom.Hex(),
		ProviderCommitment: w.ProviderCommitment.Hex(),
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
		ClosedAt:           w.ClosedAt,
	}
	if o := w.Outcome; o != nil {
		won, payout := o.Won, o.Payout
		out.Result = string(o.Result)
		out.Won = &won
		out.Payout = &payout
	}
	return out
}

type WagerListResponse struct {
	Owner  string          `json:"owner"`
	Wagers []WagerResponse `json:"wagers"`
}

type HouseResponse struct {
	TotalBalance decimal.Decimal `json:"total_balance"`
	ReservedFees decimal.Decimal `json:"reserved_fees"`
	Exposure     decimal.Decimal `json:"exposure"`
	Available    decimal.Decimal `json:"available"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func FromLedger(l house.Ledger) HouseResponse {
	return HouseResponse{
		TotalBalance: l.TotalBalance,
		ReservedFees: l.ReservedFees,
		Exposure:     l.Exposure,
		Available:    l.Available(),
		UpdatedAt:    l.UpdatedAt,
	}
}

type OracleFeeResponse struct {
	Fee decimal.Decimal `json:"fee"`
}
