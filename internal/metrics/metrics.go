// Package metrics exposes the pump monitor's counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Pumps     prometheus.Counter
	Skipped   prometheus.Counter
	Resets    prometheus.Counter
	Lines     prometheus.Counter
	LastCount prometheus.Gauge
	VolumeML  prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Pumps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigator_pumps_total",
			Help: "Pump activations recorded from the controller log.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigator_pumps_skipped_total",
			Help: "Pump activations ignored as duplicate or too soon.",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigator_controller_resets_total",
			Help: "Times the controller's pump counter went backwards.",
		}),
		Lines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigator_serial_lines_total",
			Help: "Non-blank lines read from the controller's serial log.",
		}),
		LastCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigator_last_pump_count",
			Help: "Most recent pumps-since-power-up value reported by the controller.",
		}),
		VolumeML: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigator_volume_ml_total",
			Help: "Water delivered by recorded activations, in millilitres.",
		}),
	}
	m.registry.MustRegister(
		m.Pumps, m.Skipped, m.Resets, m.Lines, m.LastCount, m.VolumeML,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
