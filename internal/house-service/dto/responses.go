package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
)

type WalletResponse struct {
	Owner     string          `json:"owner"`
	Balance   decimal.Decimal `json:"balance"`
	Frozen    bool            `json:"frozen"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func FromWallet(w house.Wallet) WalletResponse {
	return WalletResponse{Owner: w.Owner, Balance: w.Balance, Frozen: w.Frozen, UpdatedAt: w.UpdatedAt}
}

type EntryResponse struct {
	ID        int64           `json:"id"`
	Account   string          `json:"account"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	WagerID   int64           `json:"wager_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type LedgerResponse struct {
	Account string          `json:"account"`
	Entries []EntryResponse `json:"entries"`
}

func FromEntries(account string, es []house.Entry) LedgerResponse {
	out := LedgerResponse{Account: account, Entries: make([]EntryResponse, 0, len(es))}
	for _, e := range es {
		out.Entries = append(out.Entries, EntryResponse{
			ID:        e.ID,
			Account:   e.Account,
			Kind:      string(e.Kind),
			Amount:    e.Amount,
			WagerID:   e.WagerID,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
