// Package metrics exports pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/pipeline"
	"github.com/teslashibe/go-lazarillo/pkg/scheduler"
	"github.com/teslashibe/go-lazarillo/pkg/session"
)

const namespace = "lazarillo"

// Metrics holds all application metrics
type Metrics struct {
	// Alert counters, fed from the event bus
	AlertsSpoken     atomic.Uint64
	AlertsSuppressed atomic.Uint64
	Vibrations       atomic.Uint64

	// Pipeline counters
	Results          atomic.Uint64
	Rejected         atomic.Uint64
	ObjectsAnnounced atomic.Uint64
	ObjectsDropped   atomic.Uint64

	// Session state
	SessionsStarted atomic.Uint64
	Scanning        atomic.Uint64 // 0 = no, 1 = yes

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	load := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	m.gauge("alerts_spoken_total", "Alert sentences spoken", load(&m.AlertsSpoken))
	m.gauge("alerts_suppressed_total", "Alert sentences suppressed as duplicates", load(&m.AlertsSuppressed))
	m.gauge("vibrations_total", "Vibration pulses sent", load(&m.Vibrations))
	m.gauge("results_total", "Inference results handled", load(&m.Results))
	m.gauge("results_rejected_total", "Inference results with ok=false", load(&m.Rejected))
	m.gauge("objects_announced_total", "Objects that passed the detection filter", load(&m.ObjectsAnnounced))
	m.gauge("objects_dropped_total", "Objects removed by the detection filter", load(&m.ObjectsDropped))
	m.gauge("sessions_started_total", "Scanning sessions started", load(&m.SessionsStarted))
	m.gauge("scanning", "Scanning active (0=idle, 1=scanning)", load(&m.Scanning))
}

// WatchScheduler exports the scheduler counters, read on every scrape.
func (m *Metrics) WatchScheduler(stats func() scheduler.Stats) {
	u := func(pick func(scheduler.Stats) uint64) func() float64 {
		return func() float64 { return float64(pick(stats())) }
	}

	m.gauge("ticks_fired_total", "Scheduler ticks fired", u(func(s scheduler.Stats) uint64 { return s.TicksFired }))
	m.gauge("ticks_accepted_total", "Ticks that started a round-trip", u(func(s scheduler.Stats) uint64 { return s.TicksAccepted }))
	m.gauge("ticks_skipped_total", "Ticks skipped while a request was in flight", u(func(s scheduler.Stats) uint64 { return s.TicksSkipped }))
	m.gauge("results_discarded_total", "Results dropped for a stale generation", u(func(s scheduler.Stats) uint64 { return s.Discarded }))
	m.gauge("capture_errors_total", "Frame capture failures", u(func(s scheduler.Stats) uint64 { return s.CaptureErrors }))
	m.gauge("transport_errors_total", "Inference request failures", u(func(s scheduler.Stats) uint64 { return s.TransportErrors }))
	m.gauge("request_latency_ms", "Latency of the last completed round-trip in milliseconds", func() float64 {
		return float64(stats().LastLatency.Milliseconds())
	})
	m.gauge("request_in_flight", "Request in flight (0=no, 1=yes)", func() float64 {
		if stats().InFlight {
			return 1
		}
		return 0
	})
}

// WatchDevice exports whether a handset is attached.
func (m *Metrics) WatchDevice(connected func() bool) {
	m.gauge("device_connected", "Companion handset connected (0=no, 1=yes)", func() float64 {
		if connected() {
			return 1
		}
		return 0
	})
}

// Attach subscribes the counters to the event bus.
func (m *Metrics) Attach(bus *events.Bus) error {
	subs := map[string]events.Handler{
		events.TopicAlertSpoken:     func(events.Event) { m.AlertsSpoken.Add(1) },
		events.TopicAlertSuppressed: func(events.Event) { m.AlertsSuppressed.Add(1) },
		events.TopicAlertVibrated:   func(events.Event) { m.Vibrations.Add(1) },
		events.TopicResult:          m.onResult,
		events.TopicSessionState:    m.onTransition,
	}
	for topic, h := range subs {
		if err := bus.Subscribe(topic, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) onResult(e events.Event) {
	out, ok := e.Data.(pipeline.Outcome)
	if !ok {
		return
	}
	m.Results.Add(1)
	if !out.OK {
		m.Rejected.Add(1)
		return
	}
	m.ObjectsAnnounced.Add(uint64(len(out.Objects)))
	if out.Dropped > 0 {
		m.ObjectsDropped.Add(uint64(out.Dropped))
	}
}

func (m *Metrics) onTransition(e events.Event) {
	t, ok := e.Data.(session.Transition)
	if !ok {
		return
	}
	if t.To == session.Scanning {
		m.SessionsStarted.Add(1)
		m.Scanning.Store(1)
	} else {
		m.Scanning.Store(0)
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
