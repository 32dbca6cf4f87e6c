package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sqlcron"

// Dispatch paths
const (
	PathQueue      = "queue"
	PathConcurrent = "concurrent"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ticks        prometheus.Counter
	dispatches   *prometheus.CounterVec
	executions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	queueLatency prometheus.Histogram
	queueDepth   prometheus.Gauge
	inflight     prometheus.Gauge
}

// New registers the scheduler collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks evaluated.",
		}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Events dispatched for execution.",
		}, []string{"event", "path"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Completed event executions by result.",
		}, []string{"event", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time spent executing an event's transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		queueLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_latency_seconds",
			Help:      "Time a task waited in the execution queue.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks currently waiting in the execution queue.",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_executions",
			Help:      "Event executions currently running.",
		}),
	}
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) Dispatched(event, path string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(event, path).Inc()
}

// Started marks an execution as in flight
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// Finished records the outcome of an execution started with Started
func (m *Metrics) Finished(event string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.inflight.Dec()
	m.executions.WithLabelValues(event, result).Inc()
	m.duration.WithLabelValues(event).Observe(elapsed.Seconds())
}

func (m *Metrics) QueueLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.queueLatency.Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
