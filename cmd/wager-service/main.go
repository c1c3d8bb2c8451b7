package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/ledger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/cache"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/db"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/kafka"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/metrics"
	whttp "github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/http"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/producer"
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

	// Postgres: apostas, caixa, carteiras, diário e outbox
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.DefaultPool())
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := ledger.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}
	store := ledger.NewPostgres(pg)

	// Redis: cache da taxa do oráculo
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	orc, mock, err := buildOracle(cfg)
	if err != nil {
		log.Fatal("oracle", zap.Error(err))
	}

	// Kafka: eventos do outbox
	writer := kafka.NewMultiTopicWriter(cfg.KafkaBrokers)
	defer writer.Close()
	pub := producer.NewKafkaPublisher(writer)

	sm := metrics.NewSettlement()
	sm.MustRegister(prometheus.DefaultRegisterer)

	rules := settlement.Rules{
		MinBet:           cfg.MinBet,
		MaxBet:           cfg.MaxBet,
		PayoutMultiplier: cfg.PayoutMultiplier,
		FeePercent:       cfg.HouseFeePercent,
		CancelTimeout:    cfg.CancelTimeout,
	}
	machine, err := settlement.New(store, oracle.NewCachedFee(orc, rdb, cfg.OracleFeeTTL), pub, log,
		settlement.WithRules(rules),
		settlement.WithHooks(sm.Hooks()),
		settlement.WithTopics(settlement.Topics{
			Placed:    cfg.TopicWagerPlaced,
			Settled:   cfg.TopicWagerSettled,
			Cancelled: cfg.TopicWagerCancelled,
		}),
	)
	if err != nil {
		log.Fatal("settlement machine", zap.Error(err))
	}
	if l, err := machine.House(ctx); err == nil {
		sm.ObserveHouse(l)
	}

	// Oráculo embutido entrega as revelações direto na máquina
	if mock != nil {
		mock.OnRevelation(func(ctx context.Context, rev oracle.Revelation) error {
			_, err := machine.ResolveRevelation(ctx, rev)
			return err
		})
		go func() {
			if err := mock.Run(ctx, quartz.NewReal(), cfg.OracleRevealDelay, log); err != nil {
				log.Error("mock oracle", zap.Error(err))
			}
		}()
	}

	relay := settlement.NewRelay(store, pub, log, quartz.NewReal(), cfg.OutboxInterval)
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("outbox relay stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.PostgresCheck(pg), metrics.RedisCheck(rdb))
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	api := whttp.NewServer(log, machine)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening",
		zap.String("addr", apiSrv.Addr),
		zap.String("oracle_mode", cfg.OracleMode),
		zap.String("house_fee_percent", cfg.HouseFeePercent.String()),
	)
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api srv", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// buildOracle escolhe a realização do oráculo conforme ORACLE_MODE.
// No modo mock também devolve o *MockOracle para ligar o callback push.
func buildOracle(cfg config.Config) (oracle.Oracle, *oracle.MockOracle, error) {
	switch cfg.OracleMode {
	case "mock":
		fee, err := decimal.NewFromString(cfg.OracleFee)
		if err != nil {
			return nil, nil, err
		}
		m := oracle.NewMockOracle(cfg.OracleSeed, fee)
		return m, m, nil
	case "push":
		return oracle.NewPushOracle(cfg.OracleURL, cfg.OracleCallbackURL), nil, nil
	default:
		return oracle.NewPullOracle(cfg.OracleURL), nil, nil
	}
}
