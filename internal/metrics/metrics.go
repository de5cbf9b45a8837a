package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction_engine"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	BidsTotal   *prometheus.CounterVec
	BidRetries  prometheus.Counter
	LotsCreated prometheus.Counter
	LotsClosed  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BidsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bids by outcome and rejection code.",
		}, []string{"outcome", "code"}),
		BidRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bid_retries_total",
			Help:      "Compare-and-commit retries after a stale read.",
		}),
		LotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lots_created_total",
			Help:      "Lots created.",
		}),
		LotsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lots_closed_total",
			Help:      "Lots closed, by path (sweep or lazy).",
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		m.BidsTotal,
		m.BidRetries,
		m.LotsCreated,
		m.LotsClosed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) BidAccepted() {
	if m == nil {
		return
	}
	m.BidsTotal.WithLabelValues("accepted", "").Inc()
}

func (m *Metrics) BidRejected(code string) {
	if m == nil {
		return
	}
	m.BidsTotal.WithLabelValues("rejected", code).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.BidRetries.Inc()
}

func (m *Metrics) LotCreated() {
	if m == nil {
		return
	}
	m.LotsCreated.Inc()
}

func (m *Metrics) LotsClosedBy(path string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LotsClosed.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
