// Package sink defines the outbound fact store contract.
//
// The dispatcher's writer goroutine is the sink's only caller, so
// implementations may batch internally and defer durability to Flush.
// Write methods must be idempotent under re-delivery: fact ids and the
// bucket's (entity, metric, window) key make replays safe.
package sink

import (
	"context"

	"github.com/c360/lineflow/message"
)

// Sink receives the pipeline's four outbound fact kinds.
type Sink interface {
	UpsertEntity(ctx context.Context, fact message.EntityUpsert) error
	WriteStateEvent(ctx context.Context, fact message.StateEvent) error
	WriteCompletion(ctx context.Context, fact message.Completion) error
	WriteBucket(ctx context.Context, fact message.Bucket) error
	// Flush makes all previously written facts durable.
	Flush(ctx context.Context) error
	// Close flushes and releases resources. The sink is unusable after.
	Close() error
}
