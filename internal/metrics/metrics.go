package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the settlement counters exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	SettlementPasses   prometheus.Counter
	SettledMinutes     prometheus.Counter
	DebitedCoins       prometheus.Counter
	InsufficientFunds  prometheus.Counter
	SkippedSettlements prometheus.Counter
	DegradedPasses     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SettlementPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_settlement_passes_total",
			Help: "Completed settlement passes over active sessions",
		}),
		SettledMinutes: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_settled_minutes_total",
			Help: "Whole minutes billed across all sessions",
		}),
		DebitedCoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_debited_coins_total",
			Help: "Coins debited across all sessions",
		}),
		InsufficientFunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_insufficient_funds_total",
			Help: "Sessions terminated because the balance ran out",
		}),
		SkippedSettlements: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_skipped_settlements_total",
			Help: "Per-session settlements skipped because a previous one still runs",
		}),
		DegradedPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "callmeter_degraded_pricing_passes_total",
			Help: "Settlement passes billed at the flat fallback rate",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
