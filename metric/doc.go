// Package metric provides Prometheus-based metrics collection and an HTTP
// server for dataflow graph observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (node lifecycle, stream queue depth, calculator errors)
// and graph- or calculator-specific metrics registered through the same
// registry. It includes an HTTP server exposing metrics in Prometheus
// format alongside a health endpoint.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform-level metrics automatically registered (Metrics type)
//  2. Registry: extensible registration for calculator-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with health checks (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordNodeState("my-graph", "detector", 3)
//	coreMetrics.RecordInvocation("my-graph", "detector", "Process", "ok")
//
// The metrics server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Node lifecycle: node_active, node_state
//   - Invocation counts and latency: node_invocations_total, node_invocation_duration_seconds
//   - Calculator failures: node_calculator_errors_total
//   - Stream backpressure: stream_queue_depth, stream_packets_total, stream_dropped_total
//   - Scheduler overhead: scheduler_readiness_evaluation_seconds
//   - Graph lifecycle: graph_status
//   - Executor saturation: executor_queue_depth
//
// # Calculator-Specific Metrics
//
// Calculators can register custom metrics through the registry using the
// same Register* methods used internally, keyed by an arbitrary
// "service name" (conventionally the calculator type name):
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "detections_total",
//	    Help: "Objects detected",
//	})
//	err := registry.RegisterCounter("object-detector", "detections_total", counter)
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page linking to the metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (path is configurable)
//   - GET /health - plain-text "OK" health check response
//
//	server := metric.NewServer(8080, "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    log.Fatalf("failed to start metrics server: %v", err)
//	}
//	defer server.Stop()
//
// # Thread Safety
//
// All registry operations are thread-safe: registration uses mutex
// protection, metric recording is lock-free (a Prometheus guarantee), and
// CoreMetrics()/PrometheusRegistry() are safe for concurrent access.
//
// # Namespace
//
// All core metrics use the namespace "flowgraph":
//
//	flowgraph_node_state{graph="...",node="..."}
//	flowgraph_stream_queue_depth{graph="...",stream="..."}
//	flowgraph_executor_queue_depth{pool="..."}
package metric
