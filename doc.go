// Package lineflow ingests manufacturing telemetry from heterogeneous
// MQTT topic feeds and turns it into queryable facts.
//
// # Architecture
//
// An edge bridge republishes every broker message to NATS as an
// envelope (topic, payload, receive time). Lineflow subscribes to those
// subjects and runs each envelope through a fixed pipeline:
//
//	┌─────────────────────────────────────┐
//	│            NATS Ingest              │  envelope subjects
//	│         (ingest, natsclient)        │
//	└──────────────────┬──────────────────┘
//	                   ↓ Submit
//	┌─────────────────────────────────────┐
//	│            Dispatcher               │  single ordered
//	│            (pipeline)               │  apply loop
//	└──────────────────┬──────────────────┘
//	                   ↓ Decode
//	┌─────────────────────────────────────┐
//	│     Per-enterprise decoders         │  glass / beverage /
//	│            (decode)                 │  biotech topic shapes
//	└──────────────────┬──────────────────┘
//	                   ↓ readings
//	┌──────────┬───────────────┬──────────┐
//	│ registry │     track     │  window  │  reference entities,
//	│          │               │          │  lifecycle runs,
//	└──────────┴───────┬───────┴──────────┘  windowed aggregates
//	                   ↓ facts
//	┌─────────────────────────────────────┐
//	│              Sink                   │  batched, idempotent
//	│        (sink, sink/sqlite)          │  writes
//	└─────────────────────────────────────┘
//
// The three enterprise feeds publish wildly different topic grammars:
// the glass line's fixed five-segment hierarchy, the beverage plant's
// per-field work-order topics, and the biotech plant's ISA-style tag
// names. The decoders normalize all of them into four reading kinds
// (state changes, numeric samples, lifecycle samples, reference facts)
// so everything downstream is enterprise-agnostic.
//
// # Packages
//
// Pipeline:
//   - message: reading variants, fact types, envelope wire form
//   - decode: per-enterprise topic decoders
//   - registry: natural key to surrogate id resolution
//   - track: work-order / batch lifecycle state machine
//   - window: fixed-window metric aggregation with grace sealing
//   - pipeline: dispatcher wiring it all together
//   - sink, sink/sqlite: fact stores
//
// Infrastructure:
//   - ingest: NATS subscription feeding the dispatcher
//   - natsclient: NATS connection management
//   - config: YAML configuration loading and validation
//   - metric: Prometheus metrics
//   - errors: structured error handling
//   - pkg/retry: retry policies
//   - pkg/timestamp: heterogeneous timestamp parsing
package lineflow
