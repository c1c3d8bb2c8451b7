// Package apiclient é o cliente HTTP das APIs do wager-service e do
// house-service, usado pelo oracle-worker e pelo wagerctl.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
)

// APIError é uma resposta de erro da API
type APIError struct {
	Status  int
	Kind    string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// IsKind responde se err é um APIError do tipo informado
func IsKind(err error, kind string) bool {
	var e *APIError
	return errors.As(err, &e) && e.Kind == kind
}

// ReasonOf devolve o motivo detalhado de um APIError (vazio se não houver)
func ReasonOf(err error) string {
	var e *APIError
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

type Client struct {
	BaseURL string
	Caller  string // enviado no header X-Caller
	HTTP    *http.Client
}

func New(base, caller string) *Client {
	return &Client{
		BaseURL: base,
		Caller:  caller,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Caller != "" {
		req.Header.Set(httpx.CallerHeader, c.Caller)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		var er httpx.ErrorResponse
		if jerr := json.NewDecoder(res.Body).Decode(&er); jerr != nil || er.Message == "" {
			er.Message = res.Status
		}
		return &APIError{Status: res.StatusCode, Kind: er.Kind, Reason: er.Reason, Message: er.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
