package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	hhttp "github.com/radieske/coinflip-bet-platform-poc/internal/house-service/http"
	"github.com/radieske/coinflip-bet-platform-poc/internal/ledger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/db"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Inicializa logger estruturado
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mesmo banco do wager-service: caixa e carteiras são as mesmas linhas
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.DefaultPool())
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := ledger.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	funds, err := house.NewService(ledger.NewPostgres(pg), cfg.OperatorAddress, quartz.NewReal(), log)
	if err != nil {
		log.Fatal("house service", zap.Error(err))
	}
	api := hhttp.NewServer(log, funds)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.PostgresCheck(pg)) // ex: 9098
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening", zap.String("addr", apiSrv.Addr), zap.String("operator", funds.Operator()))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api srv", zap.Error(err))
	}
}
