package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	hdto "github.com/radieske/coinflip-bet-platform-poc/internal/house-service/dto"
	wdto "github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

// Operações do house-service

func (c *Client) DepositHouse(ctx context.Context, amount string) (wdto.HouseResponse, error) {
	var out wdto.HouseResponse
	err := c.do(ctx, http.MethodPost, "/house/deposit", nil, hdto.AmountRequest{Amount: amount}, &out)
	return out, err
}

func (c *Client) WithdrawFees(ctx context.Context, amount string) (wdto.HouseResponse, error) {
	var out wdto.HouseResponse
	err := c.do(ctx, http.MethodPost, "/house/withdraw-fees", nil, hdto.AmountRequest{Amount: amount}, &out)
	return out, err
}

func (c *Client) Wallet(ctx context.Context, owner string) (hdto.WalletResponse, error) {
	var out hdto.WalletResponse
	err := c.do(ctx, http.MethodGet, "/wallet", url.Values{"owner": {owner}}, nil, &out)
	return out, err
}

func (c *Client) DepositWallet(ctx context.Context, owner, amount string) (hdto.WalletResponse, error) {
	var out hdto.WalletResponse
	err := c.do(ctx, http.MethodPost, "/wallet/deposit", nil, hdto.DepositWalletRequest{Owner: owner, Amount: amount}, &out)
	return out, err
}

func (c *Client) WithdrawWallet(ctx context.Context, amount string) (hdto.WalletResponse, error) {
	var out hdto.WalletResponse
	err := c.do(ctx, http.MethodPost, "/wallet/withdraw", nil, hdto.AmountRequest{Amount: amount}, &out)
	return out, err
}

func (c *Client) FreezeWallet(ctx context.Context, owner string, frozen bool) (hdto.WalletResponse, error) {
	var out hdto.WalletResponse
	err := c.do(ctx, http.MethodPost, "/wallet/freeze", nil, hdto.FreezeRequest{Owner: owner, Frozen: frozen}, &out)
	return out, err
}

func (c *Client) Ledger(ctx context.Context, account string, limit int) (hdto.LedgerResponse, error) {
	var out hdto.LedgerResponse
	q := url.Values{"account": {account}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	err := c.do(ctx, http.MethodGet, "/ledger", q, nil, &out)
	return out, err
}
