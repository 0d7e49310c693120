package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the platform-level metrics every graph instance exports:
// node lifecycle, stream queue depth, invocation latency, and calculator
// failures. Domain-specific calculators may register additional metrics
// through the same Registry (see MetricsRegistrar).
type Metrics struct {
	// Node metrics
	NodeActive        *prometheus.GaugeVec
	NodeState         *prometheus.GaugeVec
	InvocationsTotal  *prometheus.CounterVec
	InvocationLatency *prometheus.HistogramVec
	CalculatorErrors  *prometheus.CounterVec

	// Stream metrics
	StreamQueueDepth   *prometheus.GaugeVec
	StreamPacketsTotal *prometheus.CounterVec
	StreamDroppedTotal *prometheus.CounterVec

	// Scheduler/graph metrics
	ReadinessLatency *prometheus.HistogramVec
	GraphStatus      *prometheus.GaugeVec

	// Executor metrics
	ExecutorQueueDepth *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		NodeActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "active",
				Help:      "Whether a node is currently Active (1) or not (0)",
			},
			[]string{"graph", "node"},
		),

		NodeState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "state",
				Help:      "Current node lifecycle state, numerically encoded",
			},
			[]string{"graph", "node"},
		),

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "invocations_total",
				Help:      "Total calculator entry point invocations",
			},
			[]string{"graph", "node", "kind", "status"},
		),

		InvocationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "invocation_duration_seconds",
				Help:      "Calculator entry point invocation duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"graph", "node", "kind"},
		),

		CalculatorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "node",
				Name:      "calculator_errors_total",
				Help:      "Total errors returned from calculator code",
			},
			[]string{"graph", "node"},
		),

		StreamQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "stream",
				Name:      "queue_depth",
				Help:      "Current queued packet count per stream",
			},
			[]string{"graph", "stream"},
		),

		StreamPacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "stream",
				Name:      "packets_total",
				Help:      "Total packets added to a stream",
			},
			[]string{"graph", "stream"},
		),

		StreamDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgraph",
				Subsystem: "stream",
				Name:      "dropped_total",
				Help:      "Total packets dropped due to backpressure",
			},
			[]string{"graph", "stream"},
		),

		ReadinessLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flowgraph",
				Subsystem: "scheduler",
				Name:      "readiness_evaluation_seconds",
				Help:      "Time spent re-evaluating a node's handler readiness",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"graph"},
		),

		GraphStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "graph",
				Name:      "status",
				Help:      "Graph lifecycle status (0=not started,1=running,2=draining,3=done,4=failed,5=cancelled)",
			},
			[]string{"graph"},
		),

		ExecutorQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "flowgraph",
				Subsystem: "executor",
				Name:      "queue_depth",
				Help:      "Current queued WorkItem count per executor pool",
			},
			[]string{"pool"},
		),
	}
}

// RecordNodeActive sets whether node is currently Active.
func (m *Metrics) RecordNodeActive(graph, node string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.NodeActive.WithLabelValues(graph, node).Set(v)
}

// RecordNodeState records a node's current lifecycle state as a number.
func (m *Metrics) RecordNodeState(graph, node string, state int) {
	m.NodeState.WithLabelValues(graph, node).Set(float64(state))
}

// RecordInvocation increments the invocation counter for kind/status.
func (m *Metrics) RecordInvocation(graph, node, kind, status string) {
	m.InvocationsTotal.WithLabelValues(graph, node, kind, status).Inc()
}

// ObserveInvocationDuration records how long an invocation took.
func (m *Metrics) ObserveInvocationDuration(graph, node, kind string, d time.Duration) {
	m.InvocationLatency.WithLabelValues(graph, node, kind).Observe(d.Seconds())
}

// RecordCalculatorError increments the calculator error counter for node.
func (m *Metrics) RecordCalculatorError(graph, node string) {
	m.CalculatorErrors.WithLabelValues(graph, node).Inc()
}

// RecordStreamQueueDepth sets the current queue depth for a stream.
func (m *Metrics) RecordStreamQueueDepth(graph, streamName string, depth int) {
	m.StreamQueueDepth.WithLabelValues(graph, streamName).Set(float64(depth))
}

// RecordStreamPacket increments the packets-added counter for a stream.
func (m *Metrics) RecordStreamPacket(graph, streamName string) {
	m.StreamPacketsTotal.WithLabelValues(graph, streamName).Inc()
}

// RecordStreamDropped increments the dropped-packet counter for a stream.
func (m *Metrics) RecordStreamDropped(graph, streamName string) {
	m.StreamDroppedTotal.WithLabelValues(graph, streamName).Inc()
}

// ObserveReadinessLatency records handler re-evaluation latency.
func (m *Metrics) ObserveReadinessLatency(graph string, d time.Duration) {
	m.ReadinessLatency.WithLabelValues(graph).Observe(d.Seconds())
}

// RecordGraphStatus sets the graph's current lifecycle status code.
func (m *Metrics) RecordGraphStatus(graph string, status int) {
	m.GraphStatus.WithLabelValues(graph).Set(float64(status))
}

// RecordExecutorQueueDepth sets the current queue depth for a named
// executor pool.
func (m *Metrics) RecordExecutorQueueDepth(pool string, depth int) {
	m.ExecutorQueueDepth.WithLabelValues(pool).Set(float64(depth))
}
