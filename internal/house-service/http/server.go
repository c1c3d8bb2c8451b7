package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/house-service/dto"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/address"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	wdto "github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

// Funds define as operações de fundos usadas pelo handler HTTP
type Funds interface {
	House(ctx context.Context) (house.Ledger, error)
	DepositOperatorFunds(ctx context.Context, caller string, amount decimal.Decimal) (house.Ledger, error)
	WithdrawFees(ctx context.Context, caller string, amount decimal.Decimal) (house.Ledger, error)
	Wallet(ctx context.Context, owner string) (house.Wallet, error)
	DepositWallet(ctx context.Context, owner string, amount decimal.Decimal) (house.Wallet, error)
	WithdrawWallet(ctx context.Context, caller string, amount decimal.Decimal) (house.Wallet, error)
	FreezeWallet(ctx context.Context, caller, owner string, frozen bool) (house.Wallet, error)
	Entries(ctx context.Context, account string, limit int) ([]house.Entry, error)
}

// Server expõe o caixa do operador e as carteiras dos jogadores
type Server struct {
	log   *zap.Logger
	funds Funds
}

func NewServer(log *zap.Logger, funds Funds) *Server { return &Server{log: log, funds: funds} }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Logger(s.log))

	r.Get("/house", s.getHouse)
	r.Get("/wallet", s.getWallet) // ?owner=0x...
	r.Post("/wallet/deposit", s.depositWallet)
	r.Post("/wallet/withdraw", s.withdrawWallet)
	r.Get("/ledger", s.getLedger) // ?account=house|0x...&limit=

	// operador
	r.Post("/house/deposit", s.depositHouse)
	r.Post("/house/withdraw-fees", s.withdrawFees)
	r.Post("/wallet/freeze", s.freezeWallet)
	return r
}

func (s *Server) getHouse(w http.ResponseWriter, r *http.Request) {
	l, err := s.funds.House(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wdto.FromLedger(l))
}

func (s *Server) depositHouse(w http.ResponseWriter, r *http.Request) {
	amount, ok := readAmount(w, r)
	if !ok {
		return
	}
	l, err := s.funds.DepositOperatorFunds(r.Context(), r.Header.Get(httpx.CallerHeader), amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wdto.FromLedger(l))
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	amount, ok := readAmount(w, r)
	if !ok {
		return
	}
	l, err := s.funds.WithdrawFees(r.Context(), r.Header.Get(httpx.CallerHeader), amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wdto.FromLedger(l))
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get(httpx.CallerHeader)
	}
	wl, err := s.funds.Wallet(r.Context(), owner)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWallet(wl))
}

func (s *Server) depositWallet(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositWalletRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "bad json")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	wl, err := s.funds.DepositWallet(r.Context(), req.Owner, decimal.RequireFromString(req.Amount))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWallet(wl))
}

func (s *Server) withdrawWallet(w http.ResponseWriter, r *http.Request) {
	amount, ok := readAmount(w, r)
	if !ok {
		return
	}
	wl, err := s.funds.WithdrawWallet(r.Context(), r.Header.Get(httpx.CallerHeader), amount)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWallet(wl))
}

func (s *Server) freezeWallet(w http.ResponseWriter, r *http.Request) {
	var req dto.FreezeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "bad json")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	wl, err := s.funds.FreezeWallet(r.Context(), r.Header.Get(httpx.CallerHeader), req.Owner, req.Frozen)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWallet(wl))
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		account = house.HouseAccount
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	es, err := s.funds.Entries(r.Context(), account, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromEntries(account, es))
}

func readAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req dto.AmountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "bad json")
		return decimal.Zero, false
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
		return decimal.Zero, false
	}
	return decimal.RequireFromString(req.Amount), true
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, house.ErrNotOperator):
		httpx.WriteError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, address.ErrInvalid), errors.Is(err, house.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, house.ErrWalletNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, house.ErrInsufficientFunds), errors.Is(err, house.ErrWalletFrozen):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "transfer", err.Error())
	case errors.Is(err, house.ErrFeesExceeded):
		httpx.WriteError(w, http.StatusConflict, "resource", err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
