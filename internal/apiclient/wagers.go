package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

func (c *Client) PlaceWager(ctx context.Context, req dto.PlaceWagerRequest) (dto.WagerResponse, error) {
	var out dto.WagerResponse
	err := c.do(ctx, http.MethodPost, "/wagers", nil, req, &out)
	return out, err
}

func (c *Client) GetWager(ctx context.Context, id int64) (dto.WagerResponse, error) {
	var out dto.WagerResponse
	err := c.do(ctx, http.MethodGet, "/wagers/"+itoa(id), nil, nil, &out)
	return out, err
}

func (c *Client) ListWagers(ctx context.Context, owner string) (dto.WagerListResponse, error) {
	var out dto.WagerListResponse
	err := c.do(ctx, http.MethodGet, "/wagers", url.Values{"owner": {owner}}, nil, &out)
	return out, err
}

func (c *Client) CancelWager(ctx context.Context, id int64) (dto.WagerResponse, error) {
	var out dto.WagerResponse
	err := c.do(ctx, http.MethodPost, "/wagers/"+itoa(id)+"/cancel", nil, nil, &out)
	return out, err
}

// Resolve submete uma revelação do oráculo (POST /resolve)
func (c *Client) Resolve(ctx context.Context, req dto.RevelationRequest) (dto.WagerResponse, error) {
	var out dto.WagerResponse
	err := c.do(ctx, http.MethodPost, "/resolve", nil, req, &out)
	return out, err
}

func (c *Client) House(ctx context.Context) (dto.HouseResponse, error) {
	var out dto.HouseResponse
	err := c.do(ctx, http.MethodGet, "/house", nil, nil, &out)
	return out, err
}

func (c *Client) OracleFee(ctx context.Context) (dto.OracleFeeResponse, error) {
	var out dto.OracleFeeResponse
	err := c.do(ctx, http.MethodGet, "/oracle/fee", nil, nil, &out)
	return out, err
}
