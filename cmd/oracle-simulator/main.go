package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle-simulator/server"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/metrics"
)

const deliverEvery = 500 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fee, err := decimal.NewFromString(cfg.OracleFee)
	if err != nil {
		log.Fatal("oracle fee", zap.String("ORACLE_FEE", cfg.OracleFee), zap.Error(err))
	}

	requests := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_requests_total", Help: "pedidos de aleatoriedade aceitos"})
	reveals := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_revelations_total", Help: "revelações servidas via pull"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "oracle_callbacks_total", Help: "tentativas de entrega push por resultado"}, []string{"outcome"})
	prometheus.MustRegister(requests, reveals, callbacks)

	sim := server.New(server.Config{
		Seed:        cfg.OracleSeed,
		Fee:         fee,
		RevealDelay: cfg.OracleRevealDelay,
		Hooks: server.Hooks{
			OnRequest:  requests.Inc,
			OnReveal:   reveals.Inc,
			OnCallback: func(outcome string) { callbacks.WithLabelValues(outcome).Inc() },
		},
	}, log)

	// Entrega push dos pedidos com callback
	go func() {
		if err := sim.Run(ctx, deliverEvery); err != nil {
			log.Error("push delivery stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("oracle-simulator listening",
		zap.String("addr", srv.Addr),
		zap.String("fee", fee.String()),
		zap.Duration("reveal_delay", cfg.OracleRevealDelay),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("oracle-simulator srv", zap.Error(err))
	}
}
