// Package pipeline wires the decoders, registry, tracker, and window
// aggregator into a single ordered apply loop fed from the ingest queue.
//
// Ordering is the package's one structural guarantee: every envelope is
// applied by one goroutine, so the tracker and aggregator observe each
// slot's and series' samples in arrival order. Sink writes happen on a
// separate writer goroutine so the apply path never blocks on I/O.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/lineflow/decode"
	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
	"github.com/c360/lineflow/metric"
	"github.com/c360/lineflow/pkg/timestamp"
	"github.com/c360/lineflow/registry"
	"github.com/c360/lineflow/sink"
	"github.com/c360/lineflow/track"
	"github.com/c360/lineflow/window"
)

// Default queue and batching settings, overridable via Options.
const (
	defaultQueueSize     = 4096
	defaultBatchSize     = 256
	defaultSealInterval  = time.Second
	defaultFlushInterval = 2 * time.Second
	flushTimeout         = 10 * time.Second
)

// Options holds the dispatcher's dependencies and tuning knobs.
type Options struct {
	Table    *decode.Table
	Registry *registry.Registry
	Tracker  *track.Tracker
	Windows  *window.Aggregator
	Sink     sink.Sink
	Metrics  *metric.Metrics // optional
	Logger   *slog.Logger

	// QueueSize bounds the inbound envelope queue; Submit drops when full.
	QueueSize int
	// SealInterval is the period of the window seal ticker.
	SealInterval time.Duration
	// FlushInterval is the writer's idle flush period.
	FlushInterval time.Duration
	// BatchSize is the fact count that forces an early flush.
	BatchSize int
}

// Dispatcher consumes envelopes and routes decoded readings to the
// pipeline stages.
type Dispatcher struct {
	table    *decode.Table
	registry *registry.Registry
	tracker  *track.Tracker
	windows  *window.Aggregator
	snk      sink.Sink
	metrics  *metric.Metrics
	logger   *slog.Logger

	sealInterval  time.Duration
	flushInterval time.Duration
	batchSize     int
	queueSize     int

	// Apply-loop-owned state; never touched outside applyLoop.
	states *stateFolder
	scopes *scopeAssembler

	in    chan message.Envelope
	facts chan any

	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// New creates a dispatcher. Zero tuning fields take defaults.
func New(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SealInterval <= 0 {
		opts.SealInterval = defaultSealInterval
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatcher")
	}
	return &Dispatcher{
		table:         opts.Table,
		registry:      opts.Registry,
		tracker:       opts.Tracker,
		windows:       opts.Windows,
		snk:           opts.Sink,
		metrics:       opts.Metrics,
		logger:        logger,
		sealInterval:  opts.SealInterval,
		flushInterval: opts.FlushInterval,
		batchSize:     opts.BatchSize,
		queueSize:     opts.QueueSize,
		states:        newStateFolder(),
		scopes:        newScopeAssembler(),
	}
}

// Initialize validates the dispatcher's dependencies.
func (d *Dispatcher) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.table == nil {
		return errors.WrapInvalid(fmt.Errorf("nil decoder table"),
			"dispatcher", "Initialize", "decoder table validation")
	}
	if d.registry == nil {
		return errors.WrapInvalid(fmt.Errorf("nil registry"),
			"dispatcher", "Initialize", "registry validation")
	}
	if d.tracker == nil {
		return errors.WrapInvalid(fmt.Errorf("nil tracker"),
			"dispatcher", "Initialize", "tracker validation")
	}
	if d.windows == nil {
		return errors.WrapInvalid(fmt.Errorf("nil window aggregator"),
			"dispatcher", "Initialize", "aggregator validation")
	}
	if d.snk == nil {
		return errors.WrapInvalid(fmt.Errorf("nil sink"),
			"dispatcher", "Initialize", "sink validation")
	}
	return nil
}

// Start launches the apply and writer goroutines.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return nil // already running, idempotent
	}

	// Channels are recreated on every Start: finish() closes the fact
	// channel during shutdown, so a stopped dispatcher must not reuse it.
	d.in = make(chan message.Envelope, d.queueSize)
	d.facts = make(chan any, d.queueSize)
	d.shutdown = make(chan struct{})
	d.done = make(chan struct{})
	d.running.Store(true)

	if d.metrics != nil {
		d.metrics.RecordServiceStatus("dispatcher", 2)
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.applyLoop(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.writeLoop()
	}()
	go func() {
		d.wg.Wait()
		close(d.done)
	}()

	d.logger.Info("dispatcher started",
		"queue_size", cap(d.in), "batch_size", d.batchSize,
		"seal_interval", d.sealInterval, "flush_interval", d.flushInterval)
	return nil
}

// Submit offers an envelope to the apply queue. Never blocks: a full
// queue drops the envelope and reports false.
func (d *Dispatcher) Submit(env message.Envelope) bool {
	if !d.running.Load() {
		return false
	}
	d.mu.RLock()
	in := d.in
	d.mu.RUnlock()
	select {
	case in <- env:
		return true
	default:
		if d.metrics != nil {
			d.metrics.RecordQueueDropped()
		}
		d.logger.Warn("ingest queue full, envelope dropped", "topic", env.Topic)
		return false
	}
}

// Stop drains the queue, closes out all in-flight lifecycle runs and
// open windows, flushes the sink, and waits for the goroutines.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if !d.running.Load() {
		return nil
	}
	d.running.Store(false)

	if d.metrics != nil {
		d.metrics.RecordServiceStatus("dispatcher", 3)
	}

	d.mu.Lock()
	if d.shutdown != nil {
		select {
		case <-d.shutdown:
		default:
			close(d.shutdown)
		}
	}
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"dispatcher", "Stop", "graceful shutdown")
	}

	if d.metrics != nil {
		d.metrics.RecordServiceStatus("dispatcher", 0)
	}
	d.logger.Info("dispatcher stopped")
	return nil
}

// applyLoop is the single consumer of the envelope queue.
func (d *Dispatcher) applyLoop(ctx context.Context) {
	ticker := time.NewTicker(d.sealInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.finish()
			return
		case <-d.shutdown:
			d.finish()
			return
		case env := <-d.in:
			d.apply(env)
		case <-ticker.C:
			d.sealExpired(timestamp.Now())
		}
	}
}

// finish drains the backlog, closes every in-flight run and open window,
// and closes the fact channel so the writer performs its final flush.
func (d *Dispatcher) finish() {
	for {
		select {
		case env := <-d.in:
			d.apply(env)
		default:
			now := timestamp.Now()
			for _, completion := range d.tracker.FlushAll(now) {
				d.recordCompletion(completion)
				d.emit(completion)
			}
			for _, bucket := range d.windows.FlushAll() {
				if d.metrics != nil {
					d.metrics.RecordBucketSealed(bucket.Rule)
				}
				d.emit(bucket)
			}
			close(d.facts)
			return
		}
	}
}

// apply routes one envelope through decode and the pipeline stages.
func (d *Dispatcher) apply(env message.Envelope) {
	dec, ok := d.table.Route(env.Topic)
	if !ok {
		if d.metrics != nil {
			d.metrics.RecordMessageSkipped("unknown", "unroutable")
		}
		d.logger.Debug("no decoder for topic", "topic", env.Topic)
		return
	}

	enterprise := dec.Enterprise()
	if d.metrics != nil {
		d.metrics.RecordMessageReceived(enterprise)
	}

	reading, ok := dec.Decode(env.Topic, env.Payload, env.ReceivedAt)
	if !ok {
		if d.metrics != nil {
			d.metrics.RecordMessageSkipped(enterprise, "unrecognized")
		}
		return
	}
	if d.metrics != nil {
		d.metrics.RecordMessageDecoded(enterprise, string(reading.Kind()))
	}

	switch r := reading.(type) {
	case message.ReferenceFact:
		d.applyReference(r)
	case message.LifecycleSample:
		d.applyLifecycle(r)
	case message.StateChange:
		d.applyState(enterprise, r)
	case message.NumericSample:
		d.applySample(r)
	default:
		d.logger.Error("unhandled reading kind", "kind", string(reading.Kind()))
	}
}

// applyReference upserts a reference fact into the registry, attaching
// attribute-only facts to the scope's last known natural key.
func (d *Dispatcher) applyReference(f message.ReferenceFact) {
	naturalKey, attrs, ok := d.scopes.resolve(f)
	if !ok {
		// Attribute-only fact with no key seen yet; held for its arrival.
		return
	}
	d.upsert(f.EntityKind, naturalKey, attrs, f.Time)
}

// applyLifecycle registers the sample's identifier as an entity and
// folds the sample into the tracker.
func (d *Dispatcher) applyLifecycle(s message.LifecycleSample) {
	if s.Identifier != "" {
		kind := s.IdentityKind
		if kind == "" {
			kind = message.EntityWorkOrder
		}
		// Attributes published before the identifier (recipe, operator,
		// unit of measure) were held against the slot's scope.
		attrs := d.scopes.note(kind, lifecycleScope(kind, s.Slot), s.Identifier)
		if s.Number != "" {
			if attrs == nil {
				attrs = make(map[string]any, 1)
			}
			attrs["number"] = s.Number
		}
		d.upsert(kind, s.Identifier, attrs, s.Time)
	}

	completion, outcome := d.tracker.Apply(s)
	if outcome == track.OutcomeAnomaly && d.metrics != nil {
		d.metrics.RecordQuantityAnomaly()
	}
	if completion != nil {
		d.recordCompletion(*completion)
		d.emit(*completion)
	}
}

// applyState folds a state observation and emits the event on an actual
// transition.
func (d *Dispatcher) applyState(enterprise string, sc message.StateChange) {
	ev, ok := d.states.fold(sc)
	if !ok {
		return
	}
	if d.metrics != nil {
		d.metrics.RecordStateEvent(enterprise)
	}
	d.emit(ev)
}

// applySample folds a numeric sample into its window.
func (d *Dispatcher) applySample(s message.NumericSample) {
	if _, err := d.windows.Add(s, ruleFor(s.Metric)); err != nil {
		if d.metrics != nil {
			d.metrics.RecordRuleConflict()
		}
		d.logger.Warn("sample rejected", "metric", s.Metric, "error", err)
	}
}

// upsert writes an entity through the registry and emits the fact when
// anything changed.
func (d *Dispatcher) upsert(kind message.EntityKind, naturalKey string, attrs map[string]any, at int64) {
	res := d.registry.Upsert(kind, naturalKey, attrs)
	if res.Created && d.metrics != nil {
		d.metrics.RecordEntityCreated(string(kind))
	}
	if !res.Changed {
		return
	}
	d.emit(message.EntityUpsert{
		Kind:       kind,
		NaturalKey: naturalKey,
		Surrogate:  res.Surrogate,
		Attributes: res.Attributes,
		Created:    res.Created,
		Time:       at,
	})
}

// sealExpired seals all windows past their grace period.
func (d *Dispatcher) sealExpired(now int64) {
	for _, bucket := range d.windows.SealExpired(now) {
		if d.metrics != nil {
			d.metrics.RecordBucketSealed(bucket.Rule)
		}
		d.emit(bucket)
	}
}

func (d *Dispatcher) recordCompletion(c message.Completion) {
	if d.metrics != nil {
		d.metrics.RecordCompletion(c.Slot.Enterprise, string(c.Status))
	}
}

// emit hands a fact to the writer. Blocks when the fact channel is full;
// the writer only does local batched I/O, so this bounds memory without
// coupling the apply loop to sink latency in the common case.
func (d *Dispatcher) emit(fact any) {
	d.facts <- fact
}

// lifecycleScope maps a slot to the scope its attribute facts publish
// under. Batch attribute tags carry only the unit, not the vessel.
func lifecycleScope(kind message.EntityKind, slot message.SlotRef) message.EntityRef {
	if kind == message.EntityBatch {
		return message.EntityRef{Enterprise: slot.Enterprise, Site: slot.Site}
	}
	return message.EntityRef{Enterprise: slot.Enterprise, Site: slot.Site, Line: slot.Line}
}

// writeLoop consumes facts and writes them to the sink in batches.
// Durability is decoupled from the apply loop's context: a canceled
// ingest must not drop facts already accepted, so flushes run under
// their own deadline.
func (d *Dispatcher) writeLoop() {
	ticker := time.NewTicker(d.flushInterval)
	defer ticker.Stop()

	pending := 0
	flush := func() {
		if pending == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		err := d.snk.Flush(ctx)
		cancel()
		if err != nil {
			// The sink retains unflushed facts; the next tick retries.
			d.logger.Error("sink flush failed", "pending", pending, "error", err)
		}
		pending = 0
	}

	for {
		select {
		case fact, ok := <-d.facts:
			if !ok {
				flush()
				return
			}
			if d.write(fact) {
				pending++
			}
			if pending >= d.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// write dispatches one fact to its sink method.
func (d *Dispatcher) write(fact any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	var err error
	switch f := fact.(type) {
	case message.EntityUpsert:
		err = d.snk.UpsertEntity(ctx, f)
	case message.StateEvent:
		err = d.snk.WriteStateEvent(ctx, f)
	case message.Completion:
		err = d.snk.WriteCompletion(ctx, f)
	case message.Bucket:
		err = d.snk.WriteBucket(ctx, f)
	default:
		d.logger.Error("unhandled fact type", "fact", fmt.Sprintf("%T", fact))
		return false
	}
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordSinkFailure(factName(fact))
		}
		d.logger.Error("sink write failed", "fact", factName(fact), "error", err)
		return false
	}
	return true
}

func factName(fact any) string {
	switch fact.(type) {
	case message.EntityUpsert:
		return "entity"
	case message.StateEvent:
		return "state_event"
	case message.Completion:
		return "completion"
	case message.Bucket:
		return "bucket"
	default:
		return "unknown"
	}
}
