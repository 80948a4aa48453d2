// Package sqlite persists pipeline facts in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
	"github.com/c360/lineflow/metric"
	"github.com/c360/lineflow/pkg/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    kind         TEXT NOT NULL,
    natural_key  TEXT NOT NULL,
    surrogate_id INTEGER NOT NULL,
    attributes   TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (kind, natural_key)
);
CREATE INDEX IF NOT EXISTS idx_entities_surrogate ON entities(kind, surrogate_id);

CREATE TABLE IF NOT EXISTS state_events (
    id         TEXT PRIMARY KEY,
    enterprise TEXT NOT NULL,
    site       TEXT NOT NULL,
    area       TEXT,
    line       TEXT,
    equipment  TEXT,
    code       TEXT,
    reason     TEXT,
    prev_code  TEXT,
    at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_events_entity ON state_events(enterprise, site, line, equipment, at);

CREATE TABLE IF NOT EXISTS completions (
    id             TEXT PRIMARY KEY,
    enterprise     TEXT NOT NULL,
    site           TEXT NOT NULL,
    line           TEXT NOT NULL,
    identifier     TEXT NOT NULL,
    number         TEXT,
    final_quantity REAL NOT NULL,
    target         REAL,
    status         TEXT NOT NULL,
    closed_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completions_slot ON completions(enterprise, site, line, closed_at);

CREATE TABLE IF NOT EXISTS metric_buckets (
    enterprise   TEXT NOT NULL,
    site         TEXT NOT NULL,
    area         TEXT,
    line         TEXT,
    equipment    TEXT,
    metric       TEXT NOT NULL,
    window_start INTEGER NOT NULL,
    window_end   INTEGER NOT NULL,
    rule         TEXT NOT NULL,
    aggregate    REAL NOT NULL,
    sample_count INTEGER NOT NULL,
    PRIMARY KEY (enterprise, site, area, line, equipment, metric, window_start)
);
`

// Store is a Sink backed by an embedded SQLite database. Writes buffer
// into a pending batch; Flush commits the batch in one transaction,
// retried on transient failure. Not safe for concurrent writers: the
// dispatcher's single writer goroutine is the intended caller.
type Store struct {
	db       *sql.DB
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu      sync.Mutex
	pending []pendingWrite
	closed  bool
}

type pendingWrite struct {
	kind string
	exec func(*sql.Tx) error
}

// Option configures a Store.
type Option func(*Store)

// WithRetry overrides the flush retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retryCfg = cfg }
}

// WithMetrics wires sink counters.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New opens (or creates) the database at path and ensures the schema.
func New(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "New", "opening database")
	}
	// modernc sqlite serializes internally; a single connection avoids
	// SQLITE_BUSY between the writer and any future readers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.WrapFatal(err, "Store", "New", "applying "+pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "Store", "New", "ensuring schema")
	}

	s := &Store{
		db:       db,
		logger:   logger,
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UpsertEntity implements sink.Sink. Re-upserting a key overwrites
// attributes with the registry's already-merged view.
func (s *Store) UpsertEntity(_ context.Context, fact message.EntityUpsert) error {
	var attrs any
	if len(fact.Attributes) > 0 {
		encoded, err := json.Marshal(fact.Attributes)
		if err != nil {
			return errors.WrapInvalid(err, "Store", "UpsertEntity", "encoding attributes")
		}
		attrs = string(encoded)
	}
	return s.enqueue("entity", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
INSERT INTO entities (kind, natural_key, surrogate_id, attributes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (kind, natural_key) DO UPDATE SET
    attributes = excluded.attributes,
    updated_at = excluded.updated_at`,
			string(fact.Kind), fact.NaturalKey, fact.Surrogate, attrs, fact.Time, fact.Time)
		return err
	})
}

// WriteStateEvent implements sink.Sink. Replayed ids are ignored.
func (s *Store) WriteStateEvent(_ context.Context, fact message.StateEvent) error {
	return s.enqueue("state_event", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
INSERT INTO state_events (id, enterprise, site, area, line, equipment, code, reason, prev_code, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
			fact.ID, fact.Entity.Enterprise, fact.Entity.Site, fact.Entity.Area,
			fact.Entity.Line, fact.Entity.Equipment, fact.Code, fact.Reason, fact.PrevCode, fact.Time)
		return err
	})
}

// WriteCompletion implements sink.Sink. Completions are immutable;
// replayed ids are ignored.
func (s *Store) WriteCompletion(_ context.Context, fact message.Completion) error {
	var target any
	if fact.Target != nil {
		target = *fact.Target
	}
	return s.enqueue("completion", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
INSERT INTO completions (id, enterprise, site, line, identifier, number, final_quantity, target, status, closed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
			fact.ID, fact.Slot.Enterprise, fact.Slot.Site, fact.Slot.Line,
			fact.Identifier, fact.Number, fact.FinalQuantity, target,
			string(fact.Status), fact.ClosedAt)
		return err
	})
}

// WriteBucket implements sink.Sink. A re-sealed window replaces its row.
func (s *Store) WriteBucket(_ context.Context, fact message.Bucket) error {
	return s.enqueue("bucket", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
INSERT INTO metric_buckets (enterprise, site, area, line, equipment, metric, window_start, window_end, rule, aggregate, sample_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (enterprise, site, area, line, equipment, metric, window_start) DO UPDATE SET
    aggregate = excluded.aggregate,
    sample_count = excluded.sample_count,
    rule = excluded.rule`,
			fact.Entity.Enterprise, fact.Entity.Site, fact.Entity.Area,
			fact.Entity.Line, fact.Entity.Equipment, fact.Metric,
			fact.WindowStart, fact.WindowEnd, fact.Rule, fact.Aggregate, fact.SampleCount)
		return err
	})
}

func (s *Store) enqueue(kind string, exec func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WrapFatal(errors.ErrSinkClosed, "Store", "enqueue", "writing to closed sink")
	}
	s.pending = append(s.pending, pendingWrite{kind: kind, exec: exec})
	return nil
}

// Pending returns the number of buffered writes.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush commits all buffered writes in one transaction, retrying on
// transient failure. The batch is consumed only on success, so a failed
// flush can be retried by the caller without losing facts.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrSinkClosed, "Store", "Flush", "flushing closed sink")
	}
	batch := s.pending
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	started := time.Now()
	attempts := 0
	err := retry.Do(ctx, s.retryCfg, func() error {
		attempts++
		if attempts > 1 && s.metrics != nil {
			s.metrics.RecordSinkRetry()
		}
		return errors.RetryDecision(s.commit(batch))
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSinkFailure("batch")
		}
		return errors.Wrap(err, "Store", "Flush", "committing batch")
	}

	s.mu.Lock()
	s.pending = s.pending[len(batch):]
	s.mu.Unlock()

	if s.metrics != nil {
		for _, w := range batch {
			s.metrics.RecordSinkWrite(w.kind)
		}
		s.metrics.RecordFlushDuration(time.Since(started))
	}
	s.logger.Debug("batch committed", "writes", len(batch), "took", time.Since(started))
	return nil
}

func (s *Store) commit(batch []pendingWrite) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.WrapTransient(err, "Store", "commit", "beginning transaction")
	}
	for _, w := range batch {
		if err := w.exec(tx); err != nil {
			_ = tx.Rollback()
			return errors.WrapTransient(err, "Store", "commit", "writing "+w.kind)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapTransient(err, "Store", "commit", "committing transaction")
	}
	return nil
}

// Close flushes remaining writes and closes the database.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flushErr := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "Store", "Close", "closing database")
	}
	return flushErr
}
