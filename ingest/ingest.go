// Package ingest subscribes to the broker bridge's subjects and feeds
// received envelopes into the dispatcher queue.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
	"github.com/c360/lineflow/metric"
	"github.com/c360/lineflow/pkg/timestamp"
)

// Subscriber is the broker surface the input needs. *natsclient.Client
// satisfies it; subscriptions are drained by the client's own Close.
type Subscriber interface {
	Subscribe(subject string, handler func([]byte)) error
}

// Submitter accepts envelopes for asynchronous processing.
// *pipeline.Dispatcher satisfies it.
type Submitter interface {
	Submit(env message.Envelope) bool
}

// Options holds the input's dependencies.
type Options struct {
	// Subjects are the broker subjects to subscribe to.
	Subjects   []string
	Client     Subscriber
	Dispatcher Submitter
	Metrics    *metric.Metrics // optional
	Logger     *slog.Logger
}

// Input bridges broker subscriptions to the dispatcher.
type Input struct {
	subjects   []string
	client     Subscriber
	dispatcher Submitter
	metrics    *metric.Metrics
	logger     *slog.Logger

	received atomic.Int64
	dropped  atomic.Int64

	running atomic.Bool
	mu      sync.Mutex
}

// New creates the ingest input.
func New(opts Options) *Input {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "ingest")
	}
	return &Input{
		subjects:   opts.Subjects,
		client:     opts.Client,
		dispatcher: opts.Dispatcher,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Initialize validates the input's dependencies.
func (i *Input) Initialize() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.subjects) == 0 {
		return errors.WrapInvalid(fmt.Errorf("no subjects"),
			"ingest", "Initialize", "subject validation")
	}
	if i.client == nil {
		return errors.WrapInvalid(fmt.Errorf("nil client"),
			"ingest", "Initialize", "client validation")
	}
	if i.dispatcher == nil {
		return errors.WrapInvalid(fmt.Errorf("nil dispatcher"),
			"ingest", "Initialize", "dispatcher validation")
	}
	return nil
}

// Start subscribes to every configured subject. The client must already
// be connected.
func (i *Input) Start(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running.Load() {
		return nil // already running, idempotent
	}

	for _, subject := range i.subjects {
		if err := i.client.Subscribe(subject, i.handleMessage); err != nil {
			return errors.Wrap(err, "ingest", "Start", "subscribing to "+subject)
		}
		i.logger.Info("subscribed", "subject", subject)
	}

	i.running.Store(true)
	if i.metrics != nil {
		i.metrics.RecordServiceStatus("ingest", 2)
	}
	return nil
}

// Stop halts envelope submission. Broker subscriptions stay attached
// until the client drains; received messages are simply no longer
// forwarded.
func (i *Input) Stop(_ time.Duration) error {
	if !i.running.Load() {
		return nil
	}
	i.running.Store(false)
	if i.metrics != nil {
		i.metrics.RecordServiceStatus("ingest", 0)
	}
	i.logger.Info("ingest stopped",
		"received", i.received.Load(), "dropped", i.dropped.Load())
	return nil
}

// Received returns how many envelopes were accepted from the broker.
func (i *Input) Received() int64 {
	return i.received.Load()
}

// Dropped returns how many envelopes the dispatcher refused.
func (i *Input) Dropped() int64 {
	return i.dropped.Load()
}

// handleMessage parses one broker message and submits it. Malformed
// envelopes are counted and dropped; the bridge occasionally publishes
// partial documents during its own restarts.
func (i *Input) handleMessage(data []byte) {
	if !i.running.Load() {
		return
	}

	env, err := message.DecodeEnvelope(data)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordMessageSkipped("unknown", "malformed")
		}
		i.logger.Debug("malformed envelope", "error", err)
		return
	}
	if env.Topic == "" {
		if i.metrics != nil {
			i.metrics.RecordMessageSkipped("unknown", "malformed")
		}
		return
	}
	if env.ReceivedAt == 0 {
		env.ReceivedAt = timestamp.Now()
	}

	i.received.Add(1)
	if !i.dispatcher.Submit(env) {
		i.dropped.Add(1)
	}
}
