package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

// client fala com o provedor via HTTP (contrato em pkg/contracts/oracleapi)
type client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient(base string) client {
	return client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c client) Fee(ctx context.Context) (decimal.Decimal, error) {
	var out oracleapi.FeeResponse
	if err := c.do(ctx, http.MethodGet, "/v1/fee", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Fee, nil
}

func (c client) request(ctx context.Context, req Request, callback string) (Ticket, error) {
	body := oracleapi.RequestBody{Fee: req.Fee, UserCommitment: req.UserCommitment, CallbackURL: callback}
	var out oracleapi.TicketResponse
	if err := c.do(ctx, http.MethodPost, "/v1/requests", body, &out); err != nil {
		return Ticket{}, err
	}
	if out.Handle == "" {
		return Ticket{}, fmt.Errorf("%w: empty handle", ErrUnavailable)
	}
	return Ticket{Handle: out.Handle, ProviderCommitment: out.ProviderCommitment}, nil
}

func (c client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return ErrUnknownHandle
	case res.StatusCode == http.StatusTooEarly:
		return ErrNotRevealed
	case res.StatusCode == http.StatusPaymentRequired:
		return ErrFeeTooLow
	case res.StatusCode >= 300:
		return fmt.Errorf("%w: oracle http %d", ErrUnavailable, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// PullOracle pede aleatoriedade e depois busca a revelação sob demanda.
// Quem busca (oracle-worker ou o próprio jogador) submete a revelação para liquidar.
type PullOracle struct {
	client
}

// NewPullOracle cria o adapter pull apontando para baseURL
func NewPullOracle(baseURL string) *PullOracle {
	return &PullOracle{client: newClient(baseURL)}
}

func (p *PullOracle) RequestRandomness(ctx context.Context, req Request) (Ticket, error) {
	return p.request(ctx, req, "")
}

func (p *PullOracle) FetchRevelation(ctx context.Context, handle string) (Revelation, error) {
	var out oracleapi.Revelation
	if err := p.do(ctx, http.MethodGet, "/v1/requests/"+url.PathEscape(handle)+"/revelation", nil, &out); err != nil {
		return Revelation{}, err
	}
	return Revelation{Handle: out.Handle, ProviderRandom: out.ProviderRandom}, nil
}

// PushOracle registra um callback no pedido; o provedor entrega a revelação
// chamando CallbackURL (POST /resolve do wager-service).
type PushOracle struct {
	client
	CallbackURL string
}

// NewPushOracle cria o adapter push
func NewPushOracle(baseURL, callbackURL string) *PushOracle {
	return &PushOracle{client: newClient(baseURL), CallbackURL: callbackURL}
}

func (p *PushOracle) RequestRandomness(ctx context.Context, req Request) (Ticket, error) {
	return p.request(ctx, req, p.CallbackURL)
}
