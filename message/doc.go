// Package message defines the data model flowing through the ingestion
// pipeline.
//
// Inbound, the topic decoders produce Readings: a tagged variant over four
// kinds (StateChange, NumericSample, LifecycleSample, ReferenceFact). A
// Reading carries composite natural keys (EntityRef, SlotRef) - never
// surrogate ids; surrogate identity is assigned later by the registry.
//
// Outbound, the dispatcher produces facts for the sink: EntityUpsert,
// StateEvent, Completion, and Bucket. Facts are immutable once created.
//
// All timestamps are Unix milliseconds (see pkg/timestamp).
package message
