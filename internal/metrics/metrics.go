// Package metrics exposes Prometheus collectors for run activity. The
// rest of the codebase stays metrics-free: components publish events and
// a Collector subscribed to the bus does the tallying.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaydev/clauder/internal/event"
)

// Metrics holds the Prometheus collectors for run activity.
type Metrics struct {
	runsTotal           *prometheus.CounterVec
	runDuration         prometheus.Histogram
	activeRuns          prometheus.Gauge
	permissionDecisions *prometheus.CounterVec
	interactionsTotal   *prometheus.CounterVec
}

// MustNewMetrics constructs a Metrics instance registered with reg (nil
// means the default registerer). Collectors already registered are
// reused, so repeated construction in tests or multi-run hosts is safe;
// any other registration error panics, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		runsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clauder",
				Name:      "runs_total",
				Help:      "Completed runs by terminal status.",
			},
			[]string{"status"},
		)),
		runDuration: register(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "clauder",
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of completed runs.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
			},
		)),
		activeRuns: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "clauder",
				Name:      "active_runs",
				Help:      "Runs currently executing.",
			},
		)),
		permissionDecisions: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clauder",
				Name:      "permission_decisions_total",
				Help:      "Permission decisions by outcome and deciding stage.",
			},
			[]string{"outcome", "source"},
		)),
		interactionsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clauder",
				Name:      "interactions_total",
				Help:      "In-band interaction requests by kind.",
			},
			[]string{"kind"},
		)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(C)
		}
		panic(err)
	}
	return c
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunCompleted records a finished run.
func (m *Metrics) RunCompleted(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
	m.activeRuns.Dec()
}

// PermissionResolved records one permission decision.
func (m *Metrics) PermissionResolved(outcome, source string) {
	if m == nil {
		return
	}
	m.permissionDecisions.WithLabelValues(outcome, source).Inc()
}

// InteractionRequired records one interaction request.
func (m *Metrics) InteractionRequired(kind string) {
	if m == nil {
		return
	}
	m.interactionsTotal.WithLabelValues(kind).Inc()
}

// Collector feeds bus events into a Metrics instance.
type Collector struct {
	metrics *Metrics
}

// NewCollector returns a collector tallying into m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{metrics: m}
}

// Attach subscribes to the bus and returns an unsubscribe function.
func (c *Collector) Attach() func() {
	unsubs := []func(){
		event.Subscribe(event.RunStarted, c.onEvent),
		event.Subscribe(event.RunCompleted, c.onEvent),
		event.Subscribe(event.PermissionResolved, c.onEvent),
		event.Subscribe(event.InteractionRequired, c.onEvent),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (c *Collector) onEvent(e event.Event) {
	switch data := e.Data.(type) {
	case event.RunStartedData:
		c.metrics.RunStarted()
	case event.RunCompletedData:
		c.metrics.RunCompleted(runStatus(data), data.Elapsed)
	case event.PermissionResolvedData:
		c.metrics.PermissionResolved(data.Outcome, data.Source)
	case event.InteractionRequiredData:
		c.metrics.InteractionRequired(data.Kind)
	}
}

// runStatus prefers the explicit terminal state and falls back to the
// success flag for events published without one.
func runStatus(d event.RunCompletedData) string {
	if d.Status != "" {
		return d.Status
	}
	if d.Success {
		return "completed"
	}
	return "failed"
}
