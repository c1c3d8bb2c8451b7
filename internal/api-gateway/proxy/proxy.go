// Package proxy monta o roteador do api-gateway: um reverse proxy por serviço
// sob /api/<serviço>/, com CORS e log de requisições.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/httpx"
)

// Upstreams são as URLs base dos serviços atrás do gateway
type Upstreams struct {
	Wager string
	House string
	Feed  string
}

func reverseProxy(log *zap.Logger, name, to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %s: invalid url %q", name, to)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream unavailable", zap.String("upstream", name), zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "unavailable", name+" unavailable")
	}
	return rp, nil
}

// NewRouter cria o roteador. origins vazio bloqueia requisições cross-origin.
//
//	/api/wager/* -> wager-service
//	/api/house/* -> house-service
//	/api/feed/*  -> wager-feed (inclui o upgrade WebSocket de /ws)
func NewRouter(log *zap.Logger, ups Upstreams, origins []string) (http.Handler, error) {
	routes := []struct {
		prefix, name, to string
	}{
		{"/api/wager", "wager-service", ups.Wager},
		{"/api/house", "house-service", ups.House},
		{"/api/feed", "wager-feed", ups.Feed},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", httpx.CallerHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         int((5 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	for _, rt := range routes {
		rp, err := reverseProxy(log, rt.name, rt.to)
		if err != nil {
			return nil, err
		}
		r.Mount(rt.prefix, http.StripPrefix(rt.prefix, rp))
	}
	return r, nil
}
