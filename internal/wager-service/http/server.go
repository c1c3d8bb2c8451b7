package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

// Core define as operações da máquina de liquidação usadas pelos handlers
type Core interface {
	PlaceBet(ctx context.Context, req settlement.PlaceBetRequest) (settlement.Wager, error)
	ResolveRevelation(ctx context.Context, rev oracle.Revelation) (settlement.Wager, error)
	Cancel(ctx context.Context, id int64, caller string) (settlement.Wager, error)
	GetWager(ctx context.Context, id int64) (settlement.Wager, error)
	ListWagers(ctx context.Context, owner string) ([]settlement.Wager, error)
	House(ctx context.Context) (house.Ledger, error)
	OracleFee(ctx context.Context) (decimal.Decimal, error)
}

// Server expõe a API pública de apostas
type Server struct {
	log  *zap.Logger
	core Core
}

func NewServer(log *zap.Logger, core Core) *Server {
	return &Server{log: log, core: core}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Logger(s.log))

	r.Post("/wagers", s.placeWager)
	r.Get("/wagers", s.listWagers) // ?owner=0x...
	r.Get("/wagers/{id}", s.getWager)
	r.Post("/wagers/{id}/cancel", s.cancelWager)
	r.Get("/house", s.getHouse)
	r.Get("/oracle/fee", s.getOracleFee)
	r.Post("/resolve", s.resolve) // callback do oráculo (push) e worker (pull)
	return r
}

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceWagerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), "bad json")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), err.Error())
		return
	}
	choice, err := settlement.ParseChoice(req.Choice)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), err.Error())
		return
	}
	// numeric já garantiu o formato
	stake := decimal.RequireFromString(req.Stake)
	fee := decimal.RequireFromString(req.OracleFee)

	wager, err := s.core.PlaceBet(r.Context(), settlement.PlaceBetRequest{
		Owner:      r.Header.Get(httpx.CallerHeader),
		Stake:      stake,
		Choice:     choice,
		UserRandom: common.HexToHash(req.UserRandom),
		OracleFee:  fee,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.FromWager(wager))
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(w, r)
	if !ok {
		return
	}
	wager, err := s.core.GetWager(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWager(wager))
}

func (s *Server) listWagers(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get(httpx.CallerHeader)
	}
	list, err := s.core.ListWagers(r.Context(), owner)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := dto.WagerListResponse{Owner: owner, Wagers: make([]dto.WagerResponse, 0, len(list))}
	for _, wg := range list {
		out.Wagers = append(out.Wagers, dto.FromWager(wg))
	}
	if len(list) > 0 {
		out.Owner = list[0].Owner
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) cancelWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(w, r)
	if !ok {
		return
	}
	wager, err := s.core.Cancel(r.Context(), id, r.Header.Get(httpx.CallerHeader))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWager(wager))
}

func (s *Server) getHouse(w http.ResponseWriter, r *http.Request) {
	l, err := s.core.House(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromLedger(l))
}

func (s *Server) getOracleFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.core.OracleFee(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.OracleFeeResponse{Fee: fee})
}

// resolve aceita só revelações: o valor aleatório é derivado e verificado
// contra o compromisso gravado na aposta.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.RevelationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), "bad json")
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), err.Error())
		return
	}
	wager, err := s.core.ResolveRevelation(r.Context(), oracle.Revelation{
		Handle:         req.Handle,
		ProviderRandom: common.HexToHash(req.ProviderRandom),
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWager(wager))
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	kind := settlement.KindOf(err)
	status := StatusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	httpx.WriteErrorReason(w, status, string(kind), settlement.ReasonOf(err), msg)
}

// StatusOf mapeia o tipo de rejeição para o status HTTP
func StatusOf(k settlement.Kind) int {
	switch k {
	case settlement.KindValidation:
		return http.StatusBadRequest
	case settlement.KindResource, settlement.KindIdempotency:
		return http.StatusConflict
	case settlement.KindTimeout:
		return http.StatusTooEarly
	case settlement.KindUnauthorized:
		return http.StatusForbidden
	case settlement.KindTransfer:
		return http.StatusUnprocessableEntity
	case settlement.KindNotFound:
		return http.StatusNotFound
	case settlement.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func wagerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, string(settlement.KindValidation), "invalid wager id")
		return 0, false
	}
	return id, true
}
