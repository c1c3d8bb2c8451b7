package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/cache"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/kafka"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/logger"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/metrics"
	feedcache "github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/cache"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/consumer"
	fhttp "github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/http"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/pubsub"
	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-feed/ws"
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

	// Redis: cache do último evento por aposta e Pub/Sub entre réplicas
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Métricas do feed
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_events_consumed_total", Help: "eventos de aposta consumidos do Kafka"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_errors_total", Help: "erros por etapa"}, []string{"stage"})
	clients := prometheus.NewGauge(prometheus.GaugeOpts{Name: "feed_ws_clients", Help: "conexões WebSocket abertas"})
	sent := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_ws_messages_sent_total", Help: "mensagens enviadas aos clientes"})
	prometheus.MustRegister(consumed, errs, clients, sent)

	// Hub WebSocket local, alimentado pelo canal Redis
	hub := ws.NewHub(originPolicy(cfg), log)
	hub.OnConnect = clients.Inc
	hub.OnDisconnect = clients.Dec
	hub.OnSent = sent.Inc
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	// Kafka: todos os tópicos de aposta no mesmo consumer group
	reader := kafka.NewGroupReader(cfg.KafkaBrokers,
		[]string{cfg.TopicWagerPlaced, cfg.TopicWagerSettled, cfg.TopicWagerCancelled},
		cfg.ConsumerGroup)
	defer reader.Close()

	last := feedcache.NewRedisCache(rdb, cfg.FeedCacheTTL)
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Cache:       last,
		Broadcaster: pubsub.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
		OnConsumed:  consumed.Inc,
		OnError:     func(stage string) { errs.WithLabelValues(stage).Inc() },
	}
	go func() {
		if err := proc.Run(ctx); err != nil {
			log.Error("feed consumer stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.RedisCheck(rdb))
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           fhttp.NewServer(log, hub, last).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("wager-feed listening", zap.String("addr", srv.Addr), zap.String("channel", cfg.RedisPubSubChannel))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("wager-feed srv", zap.Error(err))
	}
}

// originPolicy libera qualquer origem em ambiente local ou a lista configurada
func originPolicy(cfg config.Config) func(r *http.Request) bool {
	if cfg.FeedAllowAnyOrigin {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return slices.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
	}
}
