package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/api-gateway/proxy"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/metrics"
)

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

	// targets
	ups := proxy.Upstreams{
		Wager: cfg.WagerServiceURL,
		House: cfg.HouseServiceURL,
		Feed:  cfg.FeedServiceURL,
	}
	router, err := proxy.NewRouter(log, ups, cfg.AllowedOrigins)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("api-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("wager", ups.Wager),
		zap.String("house", ups.House),
		zap.String("feed", ups.Feed),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
