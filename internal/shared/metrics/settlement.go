package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/coinflip-bet-platform-poc/internal/house"
	"github.com/radieske/coinflip-bet-platform-poc/internal/settlement"
)

// Settlement agrupa as métricas da máquina de liquidação
type Settlement struct {
	Placed    prometheus.Counter
	Settled   *prometheus.CounterVec
	Cancelled prometheus.Counter
	Rejected  *prometheus.CounterVec
	Anomalies *prometheus.CounterVec

	HouseTotal    prometheus.Gauge
	HouseFees     prometheus.Gauge
	HouseExposure prometheus.Gauge
}

func NewSettlement() *Settlement {
	return &Settlement{
		Placed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_placed_total", Help: "apostas aceitas"}),
		Settled:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_settled_total", Help: "apostas liquidadas por resultado"}, []string{"won"}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_cancelled_total", Help: "apostas canceladas após timeout"}),
		Rejected:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_rejected_total", Help: "operações rejeitadas por operação e tipo de erro"}, []string{"op", "kind"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_resolve_anomalies_total", Help: "resoluções rejeitadas por idempotência"}, []string{"reason"}),

		HouseTotal:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "house_total_balance", Help: "saldo total do caixa"}),
		HouseFees:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "house_reserved_fees", Help: "taxas acumuladas disponíveis para saque"}),
		HouseExposure: prometheus.NewGauge(prometheus.GaugeOpts{Name: "house_exposure", Help: "pior caso de pagamento das apostas pendentes"}),
	}
}

// MustRegister registra todas as métricas no registerer informado
func (s *Settlement) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(s.Placed, s.Settled, s.Cancelled, s.Rejected, s.Anomalies, s.HouseTotal, s.HouseFees, s.HouseExposure)
}

// Hooks conecta as métricas aos callbacks da máquina
func (s *Settlement) Hooks() settlement.Hooks {
	return settlement.Hooks{
		OnPlaced: func(settlement.Wager) { s.Placed.Inc() },
		OnSettled: func(w settlement.Wager) {
			won := "false"
			if w.Outcome != nil && w.Outcome.Won {
				won = "true"
			}
			s.Settled.WithLabelValues(won).Inc()
		},
		OnCancelled: func(settlement.Wager) { s.Cancelled.Inc() },
		OnRejected: func(op string, kind settlement.Kind) {
			s.Rejected.WithLabelValues(op, string(kind)).Inc()
		},
		OnAnomaly: func(reason string) { s.Anomalies.WithLabelValues(reason).Inc() },
		OnHouse:   s.ObserveHouse,
	}
}

// ObserveHouse atualiza os gauges do caixa
func (s *Settlement) ObserveHouse(l house.Ledger) {
	s.HouseTotal.Set(l.TotalBalance.InexactFloat64())
	s.HouseFees.Set(l.ReservedFees.InexactFloat64())
	s.HouseExposure.Set(l.Exposure.InexactFloat64())
}
