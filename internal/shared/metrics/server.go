package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type HealthFunc func(ctx context.Context) error

// Check é uma dependência verificada pelo /healthz
type Check struct {
	Name string
	Fn   HealthFunc
}

// Pinger cobre *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

func PostgresCheck(db Pinger) Check {
	return Check{Name: "postgres", Fn: db.PingContext}
}

func RedisCheck(rdb *redis.Client) Check {
	return Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
}

// StartMetricsServer sobe um servidor HTTP leve só pra /metrics e /healthz.
// /healthz responde 503 listando as verificações que falharam.
func StartMetricsServer(port string, checks ...Check) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		var failed []string
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", c.Name, err))
			}
		}
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy: " + strings.Join(failed, "; ")))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
