package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/ws"
)

type LastEvents interface {
	GetLast(ctx context.Context, wagerID int64) (pubsub.Message, bool, error)
}

// Server expõe o WebSocket e a consulta do último evento de cada aposta
type Server struct {
	log   *zap.Logger
	hub   *ws.Hub
	cache LastEvents
}

func NewServer(log *zap.Logger, hub *ws.Hub, cache LastEvents) *Server {
	return &Server{log: log, hub: hub, cache: cache}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Logger(s.log))
	r.Get("/ws", s.hub.HandleWS)
	r.Get("/wagers/{id}/last", s.lastEvent)
	return r
}

func (s *Server) lastEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "validation", "invalid wager id")
		return
	}
	m, ok, err := s.cache.GetLast(r.Context(), id)
	switch {
	case err != nil:
		s.log.Warn("cache read failed", zap.Error(err))
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "cache unavailable")
	case !ok:
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no recent event for wager")
	default:
		httpx.WriteJSON(w, http.StatusOK, m)
	}
}
