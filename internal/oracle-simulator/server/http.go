package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	"github.com/radieske/coinflip-bet-platform-poc/pkg/contracts/oracleapi"
)

// Router expõe o contrato HTTP de pkg/contracts/oracleapi
func (s *Simulator) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Logger(s.log))

	r.Get("/v1/fee", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, oracleapi.FeeResponse{Fee: s.Fee()})
	})
	r.Post("/v1/requests", s.handleRequest)
	r.Get("/v1/requests/{handle}/revelation", s.handleRevelation)
	return r
}

func (s *Simulator) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body oracleapi.RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "bad json")
		return
	}
	t, err := s.Request(body)
	switch {
	case errors.Is(err, ErrFeeTooLow):
		httpx.WriteError(w, http.StatusPaymentRequired, "validation", err.Error())
	case err != nil:
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error())
	default:
		httpx.WriteJSON(w, http.StatusCreated, t)
	}
}

func (s *Simulator) handleRevelation(w http.ResponseWriter, r *http.Request) {
	rev, err := s.Reveal(chi.URLParam(r, "handle"))
	switch {
	case errors.Is(err, ErrUnknownHandle):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrNotRevealed):
		httpx.WriteError(w, http.StatusTooEarly, "timeout", err.Error())
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
	default:
		httpx.WriteJSON(w, http.StatusOK, rev)
	}
}
