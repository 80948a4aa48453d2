package sink

import (
	"context"
	"sync"

	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
)

// Memory is an in-memory Sink for tests. Entities are keyed like a real
// store so repeated upserts overwrite; events, completions, and buckets
// append in write order.
type Memory struct {
	mu          sync.Mutex
	closed      bool
	flushes     int
	entities    map[string]message.EntityUpsert
	stateEvents []message.StateEvent
	completions []message.Completion
	buckets     []message.Bucket

	// FailNext, when set, is returned by the next write call and cleared.
	FailNext error
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]message.EntityUpsert)}
}

func (m *Memory) gate() error {
	if m.closed {
		return errors.WrapFatal(errors.ErrSinkClosed, "Memory", "gate", "writing to closed sink")
	}
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		return err
	}
	return nil
}

// UpsertEntity implements Sink.
func (m *Memory) UpsertEntity(_ context.Context, fact message.EntityUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return err
	}
	m.entities[string(fact.Kind)+"\x00"+fact.NaturalKey] = fact
	return nil
}

// WriteStateEvent implements Sink.
func (m *Memory) WriteStateEvent(_ context.Context, fact message.StateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return err
	}
	m.stateEvents = append(m.stateEvents, fact)
	return nil
}

// WriteCompletion implements Sink.
func (m *Memory) WriteCompletion(_ context.Context, fact message.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return err
	}
	m.completions = append(m.completions, fact)
	return nil
}

// WriteBucket implements Sink.
func (m *Memory) WriteBucket(_ context.Context, fact message.Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return err
	}
	m.buckets = append(m.buckets, fact)
	return nil
}

// Flush implements Sink.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.WrapFatal(errors.ErrSinkClosed, "Memory", "Flush", "flushing closed sink")
	}
	m.flushes++
	return nil
}

// Close implements Sink.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Entity returns the stored upsert for a (kind, natural key), if any.
func (m *Memory) Entity(kind message.EntityKind, naturalKey string) (message.EntityUpsert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fact, ok := m.entities[string(kind)+"\x00"+naturalKey]
	return fact, ok
}

// Entities returns all stored entity upserts.
func (m *Memory) Entities() []message.EntityUpsert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.EntityUpsert, 0, len(m.entities))
	for _, fact := range m.entities {
		out = append(out, fact)
	}
	return out
}

// StateEvents returns all written state events in order.
func (m *Memory) StateEvents() []message.StateEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.StateEvent(nil), m.stateEvents...)
}

// Completions returns all written completions in order.
func (m *Memory) Completions() []message.Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Completion(nil), m.completions...)
}

// Buckets returns all written buckets in order.
func (m *Memory) Buckets() []message.Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Bucket(nil), m.buckets...)
}

// Flushes returns how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}
