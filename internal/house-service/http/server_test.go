package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/house-service/dto"
	"github.com/radieske/coinflip-bet-platform-poc/internal/ledger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	wdto "github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

const (
	operator = "0x000000000000000000000000000000000000dEaD"
	player   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := house.NewService(ledger.NewMemory(), operator, quartz.NewMock(t), zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(zap.NewNop(), svc).Router())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, caller string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(httpx.CallerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHouseOperatorEndpoints(t *testing.T) {
	srv := newTestServer(t)
	var er httpx.ErrorResponse

	assert.Equal(t, http.StatusForbidden, call(t, srv, http.MethodPost, "/house/deposit", player, dto.AmountRequest{Amount: "10"}, &er))
	assert.Equal(t, "unauthorized", er.Kind)

	var h wdto.HouseResponse
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/house/deposit", operator, dto.AmountRequest{Amount: "10"}, &h))
	assert.Equal(t, "10", h.TotalBalance.String())
	assert.Equal(t, "10", h.Available.String())

	assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/house/withdraw-fees", operator, dto.AmountRequest{Amount: "1"}, &er))
	assert.Equal(t, "resource", er.Kind)

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/house/deposit", operator, dto.AmountRequest{Amount: "ten"}, &er))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/house/deposit", operator, dto.AmountRequest{Amount: "-1"}, &er))

	var l dto.LedgerResponse
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/ledger", "", nil, &l))
	require.Len(t, l.Entries, 1)
	assert.Equal(t, string(house.EntryHouseDeposit), l.Entries[0].Kind)
}

func TestWalletEndpoints(t *testing.T) {
	srv := newTestServer(t)
	var er httpx.ErrorResponse

	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/wallet?owner="+player, "", nil, &er))

	var w dto.WalletResponse
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/wallet/deposit", "", dto.DepositWalletRequest{Owner: player, Amount: "3"}, &w))
	assert.Equal(t, "3", w.Balance.String())

	assert.Equal(t, http.StatusUnprocessableEntity, call(t, srv, http.MethodPost, "/wallet/withdraw", player, dto.AmountRequest{Amount: "4"}, &er))
	assert.Equal(t, "transfer", er.Kind)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/wallet/withdraw", player, dto.AmountRequest{Amount: "1"}, &w))
	assert.Equal(t, "2", w.Balance.String())

	assert.Equal(t, http.StatusForbidden, call(t, srv, http.MethodPost, "/wallet/freeze", player, dto.FreezeRequest{Owner: player, Frozen: true}, &er))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/wallet/freeze", operator, dto.FreezeRequest{Owner: player, Frozen: true}, &w))
	assert.True(t, w.Frozen)

	assert.Equal(t, http.StatusUnprocessableEntity, call(t, srv, http.MethodPost, "/wallet/withdraw", player, dto.AmountRequest{Amount: "1"}, &er))

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/wallet", player, nil, &w))
	assert.Equal(t, "2", w.Balance.String())

	var l dto.LedgerResponse
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/ledger?account="+player+"&limit=1", "", nil, &l))
	require.Len(t, l.Entries, 1)
	assert.Equal(t, "-1", l.Entries[0].Amount.String())

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/wallet/deposit", "", dto.DepositWalletRequest{Owner: "bob", Amount: "1"}, &er))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodGet, "/ledger?account=bob", "", nil, &er))
}
