package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle"
	"github.com/radieske/coinflip-bet-platform-poc/internal/oracle-worker/processor"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/config"
	"github.com/radieske/coinflip-bet-platform-poc/internal/shared/kafka"
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

	// Métricas Prometheus
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_worker_consumed_total", Help: "wager_placed consumidos"})
	resolved := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_worker_resolved_total", Help: "apostas resolvidas"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_worker_skipped_total", Help: "apostas já resolvidas por outro caminho"})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_worker_dlq_total", Help: "mensagens enviadas para a DLQ"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "oracle_worker_errors_total", Help: "erros por etapa"}, []string{"stage"})
	prometheus.MustRegister(consumed, resolved, skipped, dlq, errs)

	// Kafka: consome wager_placed com commit explícito; falhas definitivas vão para a DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerPlaced, cfg.ConsumerGroup)
	defer reader.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlacedDLQ)
	defer dlqWriter.Close()

	p := &processor.Processor{
		Log:      log,
		Reader:   reader,
		Revealer: oracle.NewPullOracle(cfg.OracleURL),
		Resolver: processor.NewHTTPResolver(cfg.WagerServiceURL),
		DLQ:      dlqWriter,
		Retry:    processor.DefaultRetry(),

		OnConsumed: consumed.Inc,
		OnResolved: resolved.Inc,
		OnSkipped:  skipped.Inc,
		OnDLQ:      dlq.Inc,
		OnError:    func(stage string) { errs.WithLabelValues(stage).Inc() },
	}

	// Worker não tem dependência própria para o healthz além do processo
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	log.Info("oracle-worker started",
		zap.String("consume", cfg.TopicWagerPlaced),
		zap.String("dlq", cfg.TopicWagerPlacedDLQ),
		zap.String("oracle", cfg.OracleURL),
		zap.String("resolve", cfg.WagerServiceURL),
	)
	if err := p.Run(ctx); err != nil {
		log.Error("processor stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
