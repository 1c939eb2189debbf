// Package metrics holds the Prometheus collectors for the ledger service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger counts committed ledger events and stake flow.
type Ledger struct {
	events        *prometheus.CounterVec
	stakes        *prometheus.CounterVec
	stakedAmount  *prometheus.CounterVec
	markets       prometheus.Gauge
	droppedEvents prometheus.Counter
	archiveRuns   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *Ledger
)

// Default returns the process-wide collectors, registering them with the
// default Prometheus registry on first use.
func Default() *Ledger {
	ledgerOnce.Do(func() {
		ledgerRegistry = New(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// New builds a collector set and registers it with reg.
func New(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amby_ledger_events_total",
			Help: "Committed ledger events by type.",
		}, []string{"type"}),
		stakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amby_stakes_total",
			Help: "Accepted stakes by outcome.",
		}, []string{"outcome"}),
		stakedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amby_staked_amount_total",
			Help: "Sum of accepted stake amounts by outcome. Values above 2^53 lose precision.",
		}, []string{"outcome"}),
		markets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amby_markets",
			Help: "Number of markets created.",
		}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amby_events_dropped_total",
			Help: "Events discarded because the dispatch queue was full.",
		}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amby_archive_runs_total",
			Help: "Snapshot archive runs by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amby_http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.events, m.stakes, m.stakedAmount, m.markets, m.droppedEvents, m.archiveRuns, m.httpRequests)
	return m
}

// ObserveEvent counts one committed event.
func (m *Ledger) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.events.WithLabelValues(kind).Inc()
}

// ObserveStake counts an accepted stake and its amount.
func (m *Ledger) ObserveStake(outcome string, amount float64) {
	if m == nil {
		return
	}
	m.stakes.WithLabelValues(outcome).Inc()
	m.stakedAmount.WithLabelValues(outcome).Add(amount)
}

// SetMarkets records the current market count.
func (m *Ledger) SetMarkets(n uint64) {
	if m == nil {
		return
	}
	m.markets.Set(float64(n))
}

// ObserveDropped counts an event lost to back-pressure.
func (m *Ledger) ObserveDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

// ObserveArchive counts one archive run.
func (m *Ledger) ObserveArchive(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.archiveRuns.WithLabelValues(result).Inc()
}

// ObserveHTTP counts one served request.
func (m *Ledger) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
