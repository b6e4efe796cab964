// Package metrics exposes the scheduler's counters over a Prometheus
// exposition endpoint so an operator's own Prometheus can scrape
// reservation-run progress.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the scheduler-facing counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	AllocateAttempts *prometheus.CounterVec
	PCECalls         prometheus.Counter
	RedoCycles       *prometheus.CounterVec
	Negotiations     *prometheus.CounterVec
	RunsCompleted    *prometheus.CounterVec
	AggregatesActive prometheus.Gauge
}

// New builds a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		AllocateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlanstitch_allocate_attempts_total",
			Help: "Allocate RPC attempts, by aggregate URN and outcome.",
		}, []string{"aggregate", "outcome"}),
		PCECalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vlanstitch_pce_calls_total",
			Help: "Plan expansion service invocations.",
		}),
		RedoCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlanstitch_redo_cycles_total",
			Help: "Delete-and-redo cycles, by aggregate URN.",
		}, []string{"aggregate"}),
		Negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlanstitch_vlan_negotiations_total",
			Help: "VLAN negotiation decisions, by outcome.",
		}, []string{"outcome"}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vlanstitch_runs_completed_total",
			Help: "Finished reservation runs, by result.",
		}, []string{"result"}),
		AggregatesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vlanstitch_aggregates_allocating",
			Help: "Aggregates currently in the Allocating state.",
		}),
	}

	reg.MustRegister(
		m.AllocateAttempts,
		m.PCECalls,
		m.RedoCycles,
		m.Negotiations,
		m.RunsCompleted,
		m.AggregatesActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a blocking exposition server at addr with the handler
// mounted at /metrics.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
