// Package metric provides Prometheus-based metrics collection and an HTTP
// server for pipeline monitoring.
//
// A single Registry owns the Prometheus registry, the core pipeline
// metrics (Metrics type), and registration of any component-specific
// collectors. The Server exposes the registry at /metrics in OpenMetrics
// format plus a /health endpoint.
//
// Core metrics use the "lineflow" namespace and are grouped by subsystem:
// messages (received/decoded/skipped per enterprise), pipeline (state
// events, completions, quantity anomalies), window (sealed buckets, rule
// conflicts), sink (writes, failures, retries, flush duration), and nats
// (connection status).
//
// All registry operations are safe for concurrent use; metric recording
// itself is lock-free per the Prometheus client's guarantees.
package metric
